package meta

// Invocation is the context threaded through an interceptor chain. Each
// interceptor hook receives it, may inspect the target and stage, and calls
// Proceed to hand control to the next interceptor or the terminal operation.
type Invocation struct {
	// Bean identifies the intercepted bean.
	Bean BeanID

	// Target is the live instance, nil during around-construct until the
	// chain reaches the terminal constructor.
	Target any

	// Stage names the intercepted lifecycle stage or business method.
	Stage string

	Args []any

	proceed func(*Invocation) error
	result  any
}

// NewInvocation builds an invocation whose terminal operation is fn.
func NewInvocation(bean BeanID, target any, stage string, fn func(*Invocation) error) *Invocation {
	return &Invocation{Bean: bean, Target: target, Stage: stage, proceed: fn}
}

// Proceed invokes the rest of the chain.
func (inv *Invocation) Proceed() error {
	if inv.proceed == nil {
		return nil
	}
	return inv.proceed(inv)
}

// SetTarget records the constructed instance, used by around-construct
// chains once the terminal constructor has run.
func (inv *Invocation) SetTarget(target any) { inv.Target = target }

// SetResult records the outcome of the terminal operation.
func (inv *Invocation) SetResult(result any) { inv.result = result }

// Result returns the recorded outcome.
func (inv *Invocation) Result() any { return inv.result }

// Wrap rebinds Proceed to next and returns the same invocation, so one
// shared context flows through the whole chain and target mutations made by
// inner links stay visible to outer ones.
func (inv *Invocation) Wrap(next func(*Invocation) error) *Invocation {
	inv.proceed = next
	return inv
}
