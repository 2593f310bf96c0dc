package command

import (
	"math"
	"slices"
	"strconv"
)

// Flag declares one directive parameter.
type Flag struct {
	Name string
	// Arity is the number of argument tokens following the flag name.
	Arity int
	// Syntax reports whether args are shaped like this flag's argument. The
	// first occurrence with matching syntax is the only one considered.
	Syntax func(args []string) bool
	// Parse converts syntactically valid args. ok=false rejects the value;
	// the flag then keeps its default and its text stays in the prompt.
	Parse   func(args []string) (value any, ok bool)
	Default any
}

const (
	MinImageCount = 1
	MaxImageCount = 4

	DefaultAspectRatio = "1:1"
)

// AspectRatios is the allow-list of image aspect ratios.
var AspectRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}

var countFlag = Flag{
	Name:  "--n",
	Arity: 1,
	Syntax: func(args []string) bool {
		return isAll(args[0], func(r rune) bool { return r >= '0' && r <= '9' })
	},
	Parse: func(args []string) (any, bool) {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			// Only digits reach here, so the value overflowed.
			n = math.MaxInt
		}
		return min(max(n, MinImageCount), MaxImageCount), true
	},
	Default: MinImageCount,
}

var aspectRatioFlag = Flag{
	Name:  "--ar",
	Arity: 1,
	Syntax: func(args []string) bool {
		return isAll(args[0], func(r rune) bool { return r == ':' || (r >= '0' && r <= '9') })
	},
	Parse: func(args []string) (any, bool) {
		if !slices.Contains(AspectRatios, args[0]) {
			return nil, false
		}
		return args[0], true
	},
	Default: DefaultAspectRatio,
}

// imagineFlags is the grammar of the /imagine directive.
var imagineFlags = []Flag{countFlag, aspectRatioFlag}

func isAll(s string, pred func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

// extract applies flags to tokens and returns the remaining tokens together
// with the value of every flag (its default when absent or rejected).
func extract(tokens []string, flags []Flag) ([]string, map[string]any) {
	values := make(map[string]any, len(flags))
	remove := make([]bool, len(tokens))

	for _, f := range flags {
		values[f.Name] = f.Default
		for i, tok := range tokens {
			if tok != f.Name || remove[i] || i+f.Arity >= len(tokens) {
				continue
			}
			args := tokens[i+1 : i+1+f.Arity]
			if !f.Syntax(args) {
				continue
			}
			if v, ok := f.Parse(args); ok {
				values[f.Name] = v
				for j := i; j <= i+f.Arity; j++ {
					remove[j] = true
				}
			}
			break
		}
	}

	rest := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		if !remove[i] {
			rest = append(rest, tok)
		}
	}
	return rest, values
}
