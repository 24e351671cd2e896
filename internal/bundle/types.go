package bundle

import (
	"fmt"
	"strings"
)

// TypeTag identifies an object's payload type. Values are Unity class ids.
type TypeTag int32

const (
	TypeUnknown       TypeTag = 0
	TypeGameObject    TypeTag = 1
	TypeTransform     TypeTag = 4
	TypeMaterial      TypeTag = 21
	TypeTexture2D     TypeTag = 28
	TypeMesh          TypeTag = 43
	TypeShader        TypeTag = 48
	TypeTextAsset     TypeTag = 49
	TypeAudioClip     TypeTag = 83
	TypeMonoBehaviour TypeTag = 114
	TypeFont          TypeTag = 128
	TypeAssetBundle   TypeTag = 142
	TypeSprite        TypeTag = 213
)

var typeNames = map[TypeTag]string{
	TypeGameObject:    "GameObject",
	TypeTransform:     "Transform",
	TypeMaterial:      "Material",
	TypeTexture2D:     "Texture2D",
	TypeMesh:          "Mesh",
	TypeShader:        "Shader",
	TypeTextAsset:     "TextAsset",
	TypeAudioClip:     "AudioClip",
	TypeMonoBehaviour: "MonoBehaviour",
	TypeFont:          "Font",
	TypeAssetBundle:   "AssetBundle",
	TypeSprite:        "Sprite",
}

// configNames holds the names rules use to select a type. Only types with a
// registered decoder appear here.
var configNames = map[TypeTag]string{
	TypeTexture2D: "texture2d",
	TypeTextAsset: "text",
	TypeSprite:    "sprite",
}

// ClassName returns the Unity class name, or "Class(<id>)" for ids without a
// known name.
func (t TypeTag) ClassName() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Class(%d)", int32(t))
}

// String returns the rule-facing name for selectable types and the class name
// otherwise.
func (t TypeTag) String() string {
	if name, ok := configNames[t]; ok {
		return name
	}
	return t.ClassName()
}

// ParseTypeTag maps a rule-facing type name ("texture2d", "sprite", "text")
// to its tag.
func ParseTypeTag(name string) (TypeTag, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for tag, configName := range configNames {
		if configName == normalized {
			return tag, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown asset type %q (expected one of %s)", name, strings.Join(SelectableTypes(), ", "))
}

// SelectableTypes lists the rule-facing type names in a stable order.
func SelectableTypes() []string {
	return []string{"sprite", "texture2d", "text"}
}
