package resource

import (
	"fmt"
	"strconv"
)

// ID is an opaque handle identifying one resource slot.
type ID uint32

// InvalidID is never issued by an allocator.
const InvalidID ID = 0

// String renders the handle in decimal.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Kind enumerates the asset types known to the engine.
// Values above KindUser are free for applications.
type Kind uint16

const (
	// KindUnknown is the zero kind.
	KindUnknown Kind = iota
	KindShader
	KindProgram
	KindTexture
	KindMesh
	KindMaterial
	KindLight
	KindCamera
	KindModel
	KindBlob

	// KindUser is the first application defined kind.
	KindUser Kind = 1 << 8
)

var kindNames = [...]string{
	KindUnknown:  "unknown",
	KindShader:   "shader",
	KindProgram:  "program",
	KindTexture:  "texture",
	KindMesh:     "mesh",
	KindMaterial: "material",
	KindLight:    "light",
	KindCamera:   "camera",
	KindModel:    "model",
	KindBlob:     "blob",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	if k >= KindUser {
		return fmt.Sprintf("user(%d)", k-KindUser)
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}
