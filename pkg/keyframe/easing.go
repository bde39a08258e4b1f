package keyframe

import "math"

// Func maps normalized progress u in [0,1] to eased progress.
type Func func(u float64) float64

const (
	backC1 = 1.70158
	backC2 = backC1 * 1.525
	backC3 = backC1 + 1

	elasticC4 = (2 * math.Pi) / 3
	elasticC5 = (2 * math.Pi) / 4.5

	bounceN1 = 7.5625
	bounceD1 = 2.75
)

var easings = map[string]Func{
	"linear": Linear,

	"easeInQuad":    func(u float64) float64 { return u * u },
	"easeOutQuad":   func(u float64) float64 { return 1 - (1-u)*(1-u) },
	"easeInOutQuad": easeInOutPow(2),

	"easeInCubic":    func(u float64) float64 { return u * u * u },
	"easeOutCubic":   func(u float64) float64 { return 1 - math.Pow(1-u, 3) },
	"easeInOutCubic": easeInOutPow(3),

	"easeInSine":    func(u float64) float64 { return 1 - math.Cos(u*math.Pi/2) },
	"easeOutSine":   func(u float64) float64 { return math.Sin(u * math.Pi / 2) },
	"easeInOutSine": func(u float64) float64 { return -(math.Cos(math.Pi*u) - 1) / 2 },

	"easeInExpo": func(u float64) float64 {
		if u == 0 {
			return 0
		}
		return math.Pow(2, 10*u-10)
	},
	"easeOutExpo": func(u float64) float64 {
		if u == 1 {
			return 1
		}
		return 1 - math.Pow(2, -10*u)
	},
	"easeInOutExpo": func(u float64) float64 {
		switch {
		case u == 0:
			return 0
		case u == 1:
			return 1
		case u < 0.5:
			return math.Pow(2, 20*u-10) / 2
		default:
			return (2 - math.Pow(2, -20*u+10)) / 2
		}
	},

	"easeInCirc":  func(u float64) float64 { return 1 - math.Sqrt(1-u*u) },
	"easeOutCirc": func(u float64) float64 { return math.Sqrt(1 - (u-1)*(u-1)) },
	"easeInOutCirc": func(u float64) float64 {
		if u < 0.5 {
			return (1 - math.Sqrt(1-math.Pow(2*u, 2))) / 2
		}
		return (math.Sqrt(1-math.Pow(-2*u+2, 2)) + 1) / 2
	},

	"easeInBack": func(u float64) float64 { return backC3*u*u*u - backC1*u*u },
	"easeOutBack": func(u float64) float64 {
		return 1 + backC3*math.Pow(u-1, 3) + backC1*math.Pow(u-1, 2)
	},
	"easeInOutBack": func(u float64) float64 {
		if u < 0.5 {
			return (math.Pow(2*u, 2) * ((backC2+1)*2*u - backC2)) / 2
		}
		return (math.Pow(2*u-2, 2)*((backC2+1)*(u*2-2)+backC2) + 2) / 2
	},

	"easeInElastic": func(u float64) float64 {
		if u == 0 || u == 1 {
			return u
		}
		return -math.Pow(2, 10*u-10) * math.Sin((u*10-10.75)*elasticC4)
	},
	"easeOutElastic": func(u float64) float64 {
		if u == 0 || u == 1 {
			return u
		}
		return math.Pow(2, -10*u)*math.Sin((u*10-0.75)*elasticC4) + 1
	},
	"easeInOutElastic": func(u float64) float64 {
		switch {
		case u == 0 || u == 1:
			return u
		case u < 0.5:
			return -(math.Pow(2, 20*u-10) * math.Sin((20*u-11.125)*elasticC5)) / 2
		default:
			return (math.Pow(2, -20*u+10)*math.Sin((20*u-11.125)*elasticC5))/2 + 1
		}
	},

	"easeInBounce":  func(u float64) float64 { return 1 - bounceOut(1-u) },
	"easeOutBounce": bounceOut,
	"easeInOutBounce": func(u float64) float64 {
		if u < 0.5 {
			return (1 - bounceOut(1-2*u)) / 2
		}
		return (1 + bounceOut(2*u-1)) / 2
	},
}

// Linear is the identity curve.
func Linear(u float64) float64 { return u }

func easeInOutPow(n float64) Func {
	return func(u float64) float64 {
		if u < 0.5 {
			return math.Pow(2, n-1) * math.Pow(u, n)
		}
		return 1 - math.Pow(-2*u+2, n)/2
	}
}

func bounceOut(u float64) float64 {
	switch {
	case u < 1/bounceD1:
		return bounceN1 * u * u
	case u < 2/bounceD1:
		u -= 1.5 / bounceD1
		return bounceN1*u*u + 0.75
	case u < 2.5/bounceD1:
		u -= 2.25 / bounceD1
		return bounceN1*u*u + 0.9375
	default:
		u -= 2.625 / bounceD1
		return bounceN1*u*u + 0.984375
	}
}

// Lookup returns the named easing curve.
func Lookup(name string) (Func, bool) {
	if name == "" {
		return Linear, true
	}
	fn, ok := easings[name]
	return fn, ok
}

// Ease applies the named curve to u. Unknown names are linear. The
// endpoints are pinned so that every curve maps 0 to 0 and 1 to 1 exactly.
func Ease(name string, u float64) float64 {
	if u <= 0 {
		return 0
	}
	if u >= 1 {
		return 1
	}
	fn, ok := Lookup(name)
	if !ok {
		return u
	}
	return fn(u)
}

// Names lists every registered curve.
func Names() []string {
	names := make([]string, 0, len(easings))
	for name := range easings {
		names = append(names, name)
	}
	return names
}
