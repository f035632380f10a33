package overlay

import (
	"errors"
	"fmt"
	"strings"
)

// Slot 试衣间的穿戴位置
type Slot string

const (
	SlotDress     Slot = "dress"
	SlotTop       Slot = "top"
	SlotBottom    Slot = "bottom"
	SlotShoes     Slot = "shoes"
	SlotAccessory Slot = "accessory"
)

const (
	MinScale = 0.2
	MaxScale = 3.0
)

var ErrUnknownSlot = errors.New("unknown slot")

// ParseSlot 大小写不敏感
func ParseSlot(s string) (Slot, error) {
	slot := Slot(strings.ToLower(strings.TrimSpace(s)))
	switch slot {
	case SlotDress, SlotTop, SlotBottom, SlotShoes, SlotAccessory:
		return slot, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSlot, s)
}

// Placement 单个位置的布局，坐标和宽度都是相对底图的比例
type Placement struct {
	CenterX float64 `yaml:"center_x" json:"center_x"`
	CenterY float64 `yaml:"center_y" json:"center_y"`
	Width   float64 `yaml:"width" json:"width"`
	// Scale 该位置的基础缩放
	Scale float64 `yaml:"scale" json:"scale"`
	// Z 越大越靠上
	Z int `yaml:"z" json:"z"`
}

type Layout map[Slot]Placement

// DefaultLayout 站立人台的默认布局
func DefaultLayout() Layout {
	return Layout{
		SlotDress:     {CenterX: 0.5, CenterY: 0.50, Width: 0.55, Scale: 1.0, Z: 1},
		SlotBottom:    {CenterX: 0.5, CenterY: 0.62, Width: 0.45, Scale: 1.0, Z: 2},
		SlotTop:       {CenterX: 0.5, CenterY: 0.36, Width: 0.50, Scale: 1.0, Z: 3},
		SlotShoes:     {CenterX: 0.5, CenterY: 0.93, Width: 0.35, Scale: 0.9, Z: 4},
		SlotAccessory: {CenterX: 0.5, CenterY: 0.18, Width: 0.25, Scale: 0.8, Z: 5},
	}
}

// EffectiveScale 基础缩放 + 用户调整，限制在 [MinScale, MaxScale]
func EffectiveScale(p Placement, delta float64) float64 {
	s := p.Scale + delta
	if s < MinScale {
		return MinScale
	}
	if s > MaxScale {
		return MaxScale
	}
	return s
}
