package mesh

import "github.com/brickgame/brickworld/server/world/chunk"

// mergeMask merges the faces in mask into rectangles of equal cells, that is
// of the same brick and occlusion, and calls emit for each of them.
// Rectangles are grown along u first and then along v as long as the whole
// row matches. The mask is cleared in the process.
func mergeMask(mask *[chunk.Area]cell, emit func(c cell, q quad)) {
	const s = chunk.Size
	for i := 0; i < chunk.Area; {
		c := mask[i]
		if c == 0 {
			i++
			continue
		}
		u0, v0 := i%s, i/s
		w := 1
		for u0+w < s && mask[v0*s+u0+w] == c {
			w++
		}
		h := 1
	grow:
		for v0+h < s {
			row := (v0 + h) * s
			for u := u0; u < u0+w; u++ {
				if mask[row+u] != c {
					break grow
				}
			}
			h++
		}
		for v := v0; v < v0+h; v++ {
			for u := u0; u < u0+w; u++ {
				mask[v*s+u] = 0
			}
		}
		emit(c, quad{u0: u0, v0: v0, du: w, dv: h})
		i += w
	}
}
