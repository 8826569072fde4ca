// Package brick holds the closed set of brick materials that can be placed in
// a world, along with their names and visibility classes.
package brick

import (
	"fmt"
	"strings"
)

// ID identifies the material of a single brick. The zero value is Air.
type ID uint16

const (
	Air ID = iota
	Bedrock
	Rock
	ErodedRock
	Sandstone
	Dirt
	Grass
	Glass
	Water

	count
)

// Class describes how a material occludes its neighbours. A face between two
// bricks is visible if the class of the brick is greater than the class of
// the brick it faces.
type Class uint8

const (
	// Empty bricks are never meshed and never occlude anything.
	Empty Class = iota
	// Translucent bricks are meshed but do not hide opaque faces behind them.
	Translucent
	// Opaque bricks hide every face that touches them.
	Opaque
)

// String ...
func (c Class) String() string {
	switch c {
	case Empty:
		return "empty"
	case Translucent:
		return "translucent"
	case Opaque:
		return "opaque"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

type material struct {
	name  string
	class Class
}

var materials = [count]material{
	Air:        {name: "air", class: Empty},
	Bedrock:    {name: "bedrock", class: Opaque},
	Rock:       {name: "rock", class: Opaque},
	ErodedRock: {name: "eroded_rock", class: Opaque},
	Sandstone:  {name: "sandstone", class: Opaque},
	Dirt:       {name: "dirt", class: Opaque},
	Grass:      {name: "grass", class: Opaque},
	Glass:      {name: "glass", class: Translucent},
	Water:      {name: "water", class: Translucent},
}

// Count returns the number of materials. Every ID below Count is valid.
func Count() int {
	return int(count)
}

// Valid reports whether the ID refers to a known material.
func (id ID) Valid() bool {
	return id < count
}

// Name returns the name of the material, or an empty string for an unknown
// ID.
func (id ID) Name() string {
	if !id.Valid() {
		return ""
	}
	return materials[id].name
}

// Class returns the visibility class of the material. Unknown IDs are Empty.
func (id ID) Class() Class {
	if !id.Valid() {
		return Empty
	}
	return materials[id].class
}

// Empty reports whether the brick is empty space.
func (id ID) Empty() bool {
	return id.Class() == Empty
}

// String returns the name of the material, or the numeric value if unknown.
func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("brick(%d)", uint16(id))
	}
	return materials[id].name
}

// ByName looks up a material by its name, case-insensitively.
func ByName(name string) (ID, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for id, m := range materials {
		if m.name == name {
			return ID(id), true
		}
	}
	return Air, false
}

// FaceVisible reports whether the face of brick b touching brick other should
// be drawn.
func FaceVisible(b, other ID) bool {
	return b.Class() > other.Class()
}
