package factor

import "fmt"

// Product returns the pointwise product of a and b over the union of their
// scopes. The result scope is a's scope followed by the variables of b that
// a does not contain.
func Product(a, b *Factor) (*Factor, error) {
	scope := append([]int(nil), a.scope...)
	card := append([]int(nil), a.card...)
	for i, v := range b.scope {
		if p := a.pos(v); p >= 0 {
			if a.card[p] != b.card[i] {
				return nil, &ScopeMismatchError{
					Variable: v,
					Reason:   fmt.Sprintf("cardinality %d in one factor and %d in the other", a.card[p], b.card[i]),
				}
			}
			continue
		}
		scope = append(scope, v)
		card = append(card, b.card[i])
	}

	out, err := alloc(scope, card)
	if err != nil {
		return nil, err
	}

	sa := make([]int, len(scope))
	sb := make([]int, len(scope))
	for k, v := range scope {
		if p := a.pos(v); p >= 0 {
			sa[k] = a.stride[p]
		}
		if p := b.pos(v); p >= 0 {
			sb[k] = b.stride[p]
		}
	}

	assign := make([]int, len(scope))
	ja, jb := 0, 0
	for i := range out.values {
		out.values[i] = a.values[ja] * b.values[jb]
		for k := len(scope) - 1; k >= 0; k-- {
			assign[k]++
			ja += sa[k]
			jb += sb[k]
			if assign[k] < card[k] {
				break
			}
			ja -= sa[k] * card[k]
			jb -= sb[k] * card[k]
			assign[k] = 0
		}
	}
	return out, nil
}

// ProductAll multiplies a non-empty list of factors left to right.
func ProductAll(fs ...*Factor) (*Factor, error) {
	if len(fs) == 0 {
		return Scalar(1), nil
	}
	acc := fs[0]
	for _, f := range fs[1:] {
		next, err := Product(acc, f)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	if len(fs) == 1 {
		return acc.Clone(), nil
	}
	return acc, nil
}

// SumOut sums v out of f. If v is not in scope the result is a copy of f.
func SumOut(f *Factor, v int) *Factor {
	p := f.pos(v)
	if p < 0 {
		return f.Clone()
	}
	keep := make([]int, 0, len(f.scope)-1)
	for _, s := range f.scope {
		if s != v {
			keep = append(keep, s)
		}
	}
	return project(f, keep)
}

// Marginalize sums out every variable not in keep and lays the result out
// in keep's order.
func Marginalize(f *Factor, keep []int) (*Factor, error) {
	seen := make(map[int]bool, len(keep))
	for _, v := range keep {
		if !f.Contains(v) {
			return nil, &ScopeMismatchError{Variable: v, Reason: "variable is not in the factor's scope"}
		}
		if seen[v] {
			return nil, &ScopeMismatchError{Variable: v, Reason: "variable listed twice"}
		}
		seen[v] = true
	}
	return project(f, keep), nil
}

// Reorder lays f out in the given scope order, which must be a permutation
// of f's scope.
func Reorder(f *Factor, order []int) (*Factor, error) {
	if len(order) != len(f.scope) {
		return nil, &ScopeMismatchError{
			Variable: -1,
			Reason:   fmt.Sprintf("reorder needs %d variables, got %d", len(f.scope), len(order)),
		}
	}
	return Marginalize(f, order)
}

// project accumulates f into a factor over out, a subset of f's scope in
// any order. Callers guarantee out is valid.
func project(f *Factor, out []int) *Factor {
	card := make([]int, len(out))
	for i, v := range out {
		card[i] = f.card[f.pos(v)]
	}
	res, _ := alloc(out, card)

	so := make([]int, len(f.scope))
	for k, v := range f.scope {
		if p := res.pos(v); p >= 0 {
			so[k] = res.stride[p]
		}
	}

	assign := make([]int, len(f.scope))
	jr := 0
	for i := range f.values {
		res.values[jr] += f.values[i]
		for k := len(f.scope) - 1; k >= 0; k-- {
			assign[k]++
			jr += so[k]
			if assign[k] < f.card[k] {
				break
			}
			jr -= so[k] * f.card[k]
			assign[k] = 0
		}
	}
	return res
}

// Restrict fixes the evidence variables found in f's scope to their observed
// values and drops them from the scope. Evidence on variables outside the
// scope is ignored.
func Restrict(f *Factor, evidence map[int]int) (*Factor, error) {
	base := 0
	var keep, keepCard, keepStride []int
	for i, v := range f.scope {
		val, ok := evidence[v]
		if !ok {
			keep = append(keep, v)
			keepCard = append(keepCard, f.card[i])
			keepStride = append(keepStride, f.stride[i])
			continue
		}
		if val < 0 || val >= f.card[i] {
			return nil, fmt.Errorf("factor: evidence value %d out of range for variable %d", val, v)
		}
		base += f.stride[i] * val
	}

	out, err := alloc(keep, keepCard)
	if err != nil {
		return nil, err
	}
	assign := make([]int, len(keep))
	j := base
	for i := range out.values {
		out.values[i] = f.values[j]
		for k := len(keep) - 1; k >= 0; k-- {
			assign[k]++
			j += keepStride[k]
			if assign[k] < keepCard[k] {
				break
			}
			j -= keepStride[k] * keepCard[k]
			assign[k] = 0
		}
	}
	return out, nil
}

// Reduce zeroes every entry of f that disagrees with the evidence and keeps
// the scope unchanged. This is how evidence enters clique potentials.
func Reduce(f *Factor, evidence map[int]int) (*Factor, error) {
	type obs struct{ pos, val int }
	var checks []obs
	for i, v := range f.scope {
		val, ok := evidence[v]
		if !ok {
			continue
		}
		if val < 0 || val >= f.card[i] {
			return nil, fmt.Errorf("factor: evidence value %d out of range for variable %d", val, v)
		}
		checks = append(checks, obs{pos: i, val: val})
	}

	out := f.Clone()
	if len(checks) == 0 {
		return out, nil
	}
	assign := make([]int, len(f.scope))
	for i := range out.values {
		for _, c := range checks {
			if assign[c.pos] != c.val {
				out.values[i] = 0
				break
			}
		}
		for k := len(f.scope) - 1; k >= 0; k-- {
			assign[k]++
			if assign[k] < f.card[k] {
				break
			}
			assign[k] = 0
		}
	}
	return out, nil
}

// Normalize divides f by its total mass.
func Normalize(f *Factor) (*Factor, error) {
	total := f.Sum()
	if !(total > MinMass) {
		return nil, &ZeroMassError{Mass: total}
	}
	out := f.Clone()
	for i := range out.values {
		out.values[i] /= total
	}
	return out, nil
}
