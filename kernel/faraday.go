package kernel

import "math"

// Physical constants for the electrochemical kernels. The literals are
// kept at f32 precision so the CPU path evaluates the same constants as
// the field generation shader.
const (
	faradayConst = 96485.332 // C/mol
	gasConst     = 8.3144626 // J/(mol·K)
	stdTemp      = 298.15    // K
)

// ITForward is the charging (forward) current of an RC cell under a
// linear potential sweep:
//
//	i = v·C·[1 − exp(−(Eap−Ei)/(Rs·C·v))]
//	  + v/Rp·[t − Rs·C·(1 − exp(−(Eap−Ei)/(Rs·C·v)))]
func ITForward(v, c, eAp, eI, rS, rP, tCharge float64) float64 {
	expTerm := math.Exp(-(eAp - eI) / (rS * c * v))
	capacitive := v * c * (1 - expTerm)
	resistive := v * (1 / rP) * (tCharge - rS*c*(1-expTerm))
	return capacitive + resistive
}

// ITBackward is the discharging (backward) current, offset from a
// baseline constant a:
//
//	i = a − v·C·[1 − exp(−(Ef−Eap)/(Rs·C·v))]
//	  + v/Rp·[t − Rs·C·(1 − exp(−(Ef−Eap)/(Rs·C·v)))]
func ITBackward(a, v, c, eAp, eF, rS, rP, tDischarge float64) float64 {
	expTerm := math.Exp(-(eF - eAp) / (rS * c * v))
	capTerm := v * c * (1 - expTerm)
	resTerm := v * (1 / rP) * (tDischarge - rS*c*(1-expTerm))
	return a - capTerm + resTerm
}

// IGaussian is the Gaussian surface-confined CV current for a single
// redox wave at formal potential e0:
//
//	ξ = E − E⁰
//	i = n·F·S·k⁰·Γ⁰·exp(−α·n·F/(R·T)·ξ)
//	    / exp((R·T)/(α·n·F)·(k⁰/v)·exp(−α·n·F/(R·T)·ξ))
func IGaussian(n, s, k0, gamma0, alpha, e, e0, v float64) float64 {
	xi := e - e0
	inner := math.Exp(-alpha * n * faradayConst / (gasConst * stdTemp) * xi)
	numerator := n * faradayConst * s * k0 * gamma0 * inner
	denExp := (gasConst * stdTemp) / (alpha * n * faradayConst) * (k0 / v) * inner
	// The denominator saturates far below the wave; cut off before
	// exp overflows and the ratio degenerates to Inf/Inf. Must match
	// the guard in the field generation shader.
	if denExp > 80 {
		return 0
	}
	return numerator / math.Exp(denExp)
}

// Faraday is the default field kernel: a train of Gaussian CV waves
// swept along the potential axis. x is the applied potential and y the
// formal potential of the first wave; each successive wave is offset by
// Coupling·StepSize, up to IterationLimit waves. SampleCount scales the
// surface coverage, a pure amplitude that recalibration later removes.
//
// The value is finite everywhere: far from a wave the denominator
// saturates and the term decays to zero.
func Faraday(x, y float64, p Params) float64 {
	scanRate := p.StepSize
	if scanRate <= 0 {
		scanRate = 0.1
	}
	waves := int(p.IterationLimit)
	if waves < 1 {
		waves = 1
	}
	spacing := p.Coupling * scanRate
	gamma0 := float64(p.SampleCount) * 1e-9

	var sum float64
	for i := 0; i < waves; i++ {
		e0 := y + float64(i)*spacing
		sum += IGaussian(1, 1e-4, 1.0, gamma0, 0.5, x, e0, scanRate)
	}
	return sum
}

// Capacitive is an alternative kernel built on the RC charging and
// discharging currents: forward of the diagonal E = y the cell charges
// toward x, behind it the cell discharges. The magnitude keeps the
// field non-negative so min/max recalibration sees the full envelope.
func Capacitive(x, y float64, p Params) float64 {
	const (
		rS = 10.0
		rP = 1e5
		c  = 0.05
	)
	v := 1.0
	if p.StepSize > 0 {
		v = p.StepSize * 10
	}
	t := math.Abs(x-y) / v
	if x >= y {
		return math.Abs(ITForward(v, c, x, y, rS, rP, t))
	}
	return math.Abs(ITBackward(0, v, c, x, y, rS, rP, t))
}
