package resolver

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/gocdi/gocdi/internal/meta"
)

// construct materializes one bean instance: producer invocation or
// interception-wrapped construction, followed by field injection,
// initializers, post-construct interception and callbacks, and finally
// decoration.
func (r *Resolver) construct(ctx context.Context, bean *meta.Bean, parent *meta.InjectionPoint) (any, error) {
	chain := r.interceptorsFor(ctx, bean)
	value, err := r.constructIntercepted(ctx, bean, parent, chain)
	if err != nil {
		return nil, err
	}

	if err := r.injectFields(ctx, bean, value, parent); err != nil {
		return nil, err
	}
	if err := r.runInitializers(ctx, bean, value, parent); err != nil {
		return nil, err
	}
	if err := r.postConstruct(bean, value, chain); err != nil {
		return nil, err
	}

	decorated, err := r.decorate(ctx, bean, value)
	if err != nil {
		return nil, err
	}
	return decorated, nil
}

// constructIntercepted runs the around-construct chain; the terminal link
// calls the selected constructor or allocates the zero value.
func (r *Resolver) constructIntercepted(ctx context.Context, bean *meta.Bean, parent *meta.InjectionPoint, chain []boundInterceptor) (any, error) {
	terminal := func(inv *meta.Invocation) error {
		value, err := r.instantiate(ctx, bean, parent)
		if err != nil {
			return err
		}
		inv.SetTarget(value)
		return nil
	}

	inv, err := runChain(bean.ID, nil, "construct", aroundConstructHooks(chain), terminal)
	if err != nil {
		return nil, meta.CreationError{Bean: bean.ID, Class: bean.Class, Stage: "constructor", Cause: err}
	}
	if inv.Target == nil {
		return nil, meta.CreationError{
			Bean: bean.ID, Class: bean.Class, Stage: "constructor",
			Cause: fmt.Errorf("around-construct chain completed without producing an instance"),
		}
	}
	return inv.Target, nil
}

func (r *Resolver) instantiate(ctx context.Context, bean *meta.Bean, parent *meta.InjectionPoint) (any, error) {
	if bean.Constructor == nil {
		return reflect.New(bean.Class).Interface(), nil
	}
	args, err := r.resolveParams(ctx, bean.Constructor.Params, parent)
	if err != nil {
		return nil, err
	}
	out := bean.Constructor.Fn.Call(args)
	if bean.Constructor.ReturnsError {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return nil, errv.Interface().(error)
		}
	}
	instance := out[0]
	if instance.IsNil() {
		return nil, fmt.Errorf("constructor returned nil")
	}
	return instance.Interface(), nil
}

// produce invokes the producer method on its declaring bean's instance and
// returns the produced value alongside the host it was produced from.
func (r *Resolver) produce(ctx context.Context, bean *meta.Bean, parent *meta.InjectionPoint) (any, any, error) {
	p := bean.Producer
	host, err := r.InstanceFor(ctx, p.DeclaringBean)
	if err != nil {
		return nil, nil, meta.CreationError{Bean: bean.ID, Class: bean.Class, Stage: "producer", Cause: err}
	}

	params, err := r.resolveParams(ctx, p.Params, parent)
	if err != nil {
		return nil, nil, meta.CreationError{Bean: bean.ID, Class: bean.Class, Stage: "producer", Cause: err}
	}
	args := append([]reflect.Value{reflect.ValueOf(host)}, params...)
	out := p.Method.Func.Call(args)
	if p.ReturnsError {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return nil, nil, meta.CreationError{Bean: bean.ID, Class: bean.Class, Stage: "producer", Cause: errv.Interface().(error)}
		}
	}

	produced := out[0]
	if isNilValue(produced) && bean.Scope != meta.Dependent {
		return nil, nil, meta.CreationError{
			Bean: bean.ID, Class: bean.Class, Stage: "producer",
			Cause: fmt.Errorf("producer %s.%s returned nil for a %s-scoped bean", meta.FormatType(bean.Class), p.Member, bean.Scope),
		}
	}
	return produced.Interface(), host, nil
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

// injectFields satisfies every tagged field on the freshly constructed
// instance.
func (r *Resolver) injectFields(ctx context.Context, bean *meta.Bean, instance any, parent *meta.InjectionPoint) error {
	target := reflect.ValueOf(instance).Elem()
	for _, point := range bean.Fields {
		v, err := r.resolvePoint(ctx, point, parent)
		if err != nil {
			return err
		}
		field := target.FieldByIndex(point.FieldIndex)
		field.Set(coerce(v, field.Type()))
	}
	return nil
}

func (r *Resolver) runInitializers(ctx context.Context, bean *meta.Bean, instance any, parent *meta.InjectionPoint) error {
	for _, init := range bean.Initializers {
		args, err := r.resolveParams(ctx, init.Params, parent)
		if err != nil {
			return meta.CreationError{Bean: bean.ID, Class: bean.Class, Stage: "initializer", Cause: err}
		}
		m := reflect.ValueOf(instance).MethodByName(init.Method.Name)
		out := m.Call(args)
		if len(out) == 1 && !out[0].IsNil() {
			return meta.CreationError{Bean: bean.ID, Class: bean.Class, Stage: "initializer", Cause: out[0].Interface().(error)}
		}
	}
	return nil
}

func (r *Resolver) resolveParams(ctx context.Context, points []meta.InjectionPoint, parent *meta.InjectionPoint) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(points))
	for i, point := range points {
		v, err := r.resolvePoint(ctx, point, parent)
		if err != nil {
			return nil, err
		}
		args[i] = coerce(v, point.Type)
	}
	return args, nil
}

// coerce wraps a resolved value for a possibly-interface parameter slot.
func coerce(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type() != t && t.Kind() == reflect.Interface && rv.Type().Implements(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out
	}
	return rv
}

// postConstruct runs the post-construct interceptor chain, with the bean's
// own callbacks as the terminal link so interceptors wrap them.
func (r *Resolver) postConstruct(bean *meta.Bean, instance any, chain []boundInterceptor) error {
	terminal := func(inv *meta.Invocation) error {
		return r.runCallbacks(bean, instance, bean.PostConstructs)
	}
	if _, err := runChain(bean.ID, instance, "post-construct", postConstructHooks(chain), terminal); err != nil {
		return meta.CreationError{Bean: bean.ID, Class: bean.Class, Stage: "post-construct", Cause: err}
	}
	return nil
}

// destroy tears one class-bean instance down: pre-destroy interception
// around the bean's callbacks.
func (r *Resolver) destroy(bean *meta.Bean, instance any) error {
	ctx := context.Background()

	chain := r.interceptorsFor(ctx, bean)
	terminal := func(inv *meta.Invocation) error {
		return r.runCallbacks(bean, instance, bean.PreDestroys)
	}
	if _, err := runChain(bean.ID, instance, "pre-destroy", preDestroyHooks(chain), terminal); err != nil {
		return fmt.Errorf("pre-destroy of %s failed: %w", bean, err)
	}
	return nil
}

// dispose hands a produced value to its linked disposer on the captured
// declaring host.
func (r *Resolver) dispose(bean *meta.Bean, host, instance any) error {
	d := bean.Producer.Disposer
	if d == nil {
		return nil
	}
	out := d.Method.Func.Call([]reflect.Value{
		reflect.ValueOf(host),
		coerce(instance, d.ParamType),
	})
	if d.ReturnsError && !out[len(out)-1].IsNil() {
		return fmt.Errorf("disposer %s.%s failed: %w", meta.FormatType(bean.Class), d.Member, out[len(out)-1].Interface().(error))
	}
	return nil
}

// passivateHook returns the pre-passivation hook for beans that declare
// one, nil otherwise.
func (r *Resolver) passivateHook(bean *meta.Bean) func(any) error {
	if len(bean.PrePassivates) == 0 {
		return nil
	}
	return func(v any) error { return r.runCallbacks(bean, v, bean.PrePassivates) }
}

// runCallbacks dispatches lifecycle callbacks by name on the instance, so
// embedding promotion and shadow suppression decided at validation time
// line up with what actually runs.
func (r *Resolver) runCallbacks(bean *meta.Bean, instance any, callbacks []meta.Callback) error {
	rv := reflect.ValueOf(instance)
	for _, cb := range callbacks {
		m := rv.MethodByName(cb.Name)
		if !m.IsValid() {
			return fmt.Errorf("callback %s is not callable on %s", cb.Name, meta.FormatType(bean.Class))
		}
		out := m.Call(nil)
		if len(out) == 1 && !out[0].IsNil() {
			return fmt.Errorf("callback %s on %s failed: %w", cb.Name, meta.FormatType(bean.Class), out[0].Interface().(error))
		}
	}
	return nil
}

// boundInterceptor pairs an interceptor descriptor with a live instance of
// its class, injected and ready to receive hook invocations.
type boundInterceptor struct {
	desc     *meta.Interceptor
	instance reflect.Value
}

// interceptorsFor selects and instantiates the interceptors bound to a
// bean, in ascending priority order. Instantiation failures poison the
// chain lazily: the failure surfaces when the chain runs.
func (r *Resolver) interceptorsFor(ctx context.Context, bean *meta.Bean) []boundInterceptor {
	var out []boundInterceptor
	for _, ic := range r.store.Interceptors() {
		if !ic.AppliesTo(bean.InterceptorBindings) {
			continue
		}
		inst := reflect.New(ic.Class)
		for _, point := range ic.Fields {
			v, err := r.resolvePoint(ctx, point, nil)
			if err != nil {
				r.logger.Warn("interceptor injection failed",
					zap.String("interceptor", ic.String()), zap.Error(err))
				continue
			}
			field := inst.Elem().FieldByIndex(point.FieldIndex)
			field.Set(coerce(v, field.Type()))
		}
		out = append(out, boundInterceptor{desc: ic, instance: inst})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].desc.Priority < out[j].desc.Priority })
	return out
}

type hookStep struct {
	method   reflect.Method
	instance reflect.Value
}

func aroundConstructHooks(chain []boundInterceptor) []hookStep {
	return hooksOf(chain, func(ic *meta.Interceptor) *reflect.Method { return ic.AroundConstruct })
}

func postConstructHooks(chain []boundInterceptor) []hookStep {
	return hooksOf(chain, func(ic *meta.Interceptor) *reflect.Method { return ic.PostConstruct })
}

func preDestroyHooks(chain []boundInterceptor) []hookStep {
	return hooksOf(chain, func(ic *meta.Interceptor) *reflect.Method { return ic.PreDestroy })
}

func hooksOf(chain []boundInterceptor, pick func(*meta.Interceptor) *reflect.Method) []hookStep {
	var out []hookStep
	for _, bi := range chain {
		if m := pick(bi.desc); m != nil {
			out = append(out, hookStep{method: *m, instance: bi.instance})
		}
	}
	return out
}

// runChain threads one invocation through the hook steps and into the
// terminal operation. Hooks that never call Proceed short-circuit the rest
// of the chain.
func runChain(bean meta.BeanID, target any, stage string, hooks []hookStep, terminal func(*meta.Invocation) error) (*meta.Invocation, error) {
	proceed := terminal
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		inner := proceed
		proceed = func(inv *meta.Invocation) error {
			out := h.method.Func.Call([]reflect.Value{h.instance, reflect.ValueOf(inv.Wrap(inner))})
			if !out[0].IsNil() {
				return out[0].Interface().(error)
			}
			return nil
		}
	}
	inv := meta.NewInvocation(bean, target, stage, proceed)
	return inv, inv.Proceed()
}

// decorate wraps the instance with every decorator whose delegate type the
// bean exposes. Lower priority sits outermost, so it sees a call first and
// delegates inward toward the bean.
func (r *Resolver) decorate(ctx context.Context, bean *meta.Bean, instance any) (any, error) {
	decorators := r.store.Decorators()
	if len(decorators) == 0 {
		return instance, nil
	}

	current := instance
	for i := len(decorators) - 1; i >= 0; i-- {
		d := decorators[i]
		if !d.Decorates(bean.InstanceType, bean.Qualifiers) {
			continue
		}
		wrapper := reflect.New(d.Class)
		for _, point := range d.Fields {
			v, err := r.resolvePoint(ctx, point, nil)
			if err != nil {
				return nil, meta.CreationError{Bean: bean.ID, Class: d.Class, Stage: "decorator", Cause: err}
			}
			field := wrapper.Elem().FieldByIndex(point.FieldIndex)
			field.Set(coerce(v, field.Type()))
		}
		delegate := wrapper.Elem().FieldByIndex(d.Delegate.FieldIndex)
		delegate.Set(coerce(current, delegate.Type()))
		current = wrapper.Interface()
	}
	return current, nil
}
