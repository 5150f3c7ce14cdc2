package geom

import "math"

// Vec 二维向量，世界坐标与速度共用
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec) Add(o Vec) Vec       { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec       { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(k float64) Vec { return Vec{v.X * k, v.Y * k} }
func (v Vec) Len() float64        { return math.Hypot(v.X, v.Y) }
func (v Vec) Dist(o Vec) float64  { return v.Sub(o).Len() }

// Normalize 返回单位向量；零向量原样返回
func (v Vec) Normalize() Vec {
	l := v.Len()
	if l == 0 {
		return Vec{}
	}
	return Vec{v.X / l, v.Y / l}
}

// Clamp 将坐标裁剪到 [0,w]×[0,h]
func (v Vec) Clamp(w, h float64) Vec {
	return Vec{X: clamp(v.X, 0, w), Y: clamp(v.Y, 0, h)}
}

// Heading 从 from 指向 to 的朝向（度）。
// 飞船贴图“机头朝上”，因此在 atan2 的基础上加 90°。
func Heading(from, to Vec) float64 {
	d := to.Sub(from)
	return NormalizeAngle(math.Atan2(d.Y, d.X)*180/math.Pi + 90)
}

// NormalizeAngle 将角度归一化到 [0,360)
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// LerpAngle 沿最短弧从 cur 向 target 插值 t（0..1）
func LerpAngle(cur, target, t float64) float64 {
	diff := math.Mod(target-cur+540, 360) - 180
	return NormalizeAngle(cur + diff*t)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo || math.IsNaN(x) {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
