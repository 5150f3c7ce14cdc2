package combat

import "spacearena/geom"

const (
	// InterceptIterations 提前量迭代次数
	InterceptIterations = 5
	// StationarySpeed 低于该速度视为静止目标
	StationarySpeed = 0.01
	// MinShotDistance 瞄准点距离小于该值时不发射
	MinShotDistance = 1.0
)

// Intercept 计算命中移动目标所需的瞄准点。
// 每轮用当前估计点的距离求飞行时间，再按目标匀速运动外推。
func Intercept(shooter, target, targetVel geom.Vec, projectileSpeed float64) geom.Vec {
	if targetVel.Len() < StationarySpeed || projectileSpeed <= 0 {
		return target
	}
	aim := target
	for i := 0; i < InterceptIterations; i++ {
		timeToReach := shooter.Dist(aim) / projectileSpeed
		aim = target.Add(targetVel.Scale(timeToReach))
	}
	return aim
}
