package gocdi_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocdi/gocdi"
	"github.com/gocdi/gocdi/passivation"
)

// End-to-end tests exercising the whole system through the public surface:
// a small web-shop with per-session carts, payment gateways, auditing and
// session passivation.

type ShoppingCart struct {
	Items  []string
	Sealed bool

	// Activations counts post-activate callbacks across restores.
	Activations int
}

func (c *ShoppingCart) AddItem(item string) { c.Items = append(c.Items, item) }

func (c *ShoppingCart) Seal()    { c.Sealed = true }
func (c *ShoppingCart) Refresh() { c.Activations++ }

// FragileCart refuses to seal, so passivating its session always fails.
type FragileCart struct {
	State string
}

func (c *FragileCart) Seal() error { return errors.New("cart cannot be sealed") }

func cartDef() *gocdi.ComponentDef {
	return gocdi.Component[ShoppingCart]().
		WithScope(gocdi.Session).
		OnPrePassivate("Seal").
		OnPostActivate("Refresh")
}

func TestIntegration_Sessions(t *testing.T) {
	t.Run("sessions are isolated", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil, cartDef())

		alice := gocdi.WithSession(context.Background(), "alice")
		bob := gocdi.WithSession(context.Background(), "bob")

		cartA, err := gocdi.Resolve[*ShoppingCart](alice, c)
		require.NoError(t, err)
		cartA.AddItem("book")

		cartB, err := gocdi.Resolve[*ShoppingCart](bob, c)
		require.NoError(t, err)
		assert.Empty(t, cartB.Items)

		again, err := gocdi.Resolve[*ShoppingCart](alice, c)
		require.NoError(t, err)
		assert.Same(t, cartA, again)
	})

	t.Run("resolution without a session fails", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil, cartDef())

		_, err := gocdi.Resolve[*ShoppingCart](context.Background(), c)
		var notActive gocdi.ContextNotActiveError
		require.ErrorAs(t, err, &notActive)
		assert.Equal(t, gocdi.Session, notActive.Scope)
	})

	t.Run("container level binding is a fallback", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil, cartDef())
		require.NoError(t, c.BindSession("kiosk"))
		defer c.UnbindSession()

		cart, err := gocdi.Resolve[*ShoppingCart](context.Background(), c)
		require.NoError(t, err)
		cart.AddItem("candy")

		same, err := gocdi.Resolve[*ShoppingCart](gocdi.WithSession(context.Background(), "kiosk"), c)
		require.NoError(t, err)
		assert.Same(t, cart, same)
	})

	t.Run("invalidate destroys only one session", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil, cartDef())

		alice := gocdi.WithSession(context.Background(), "alice")
		bob := gocdi.WithSession(context.Background(), "bob")

		cartA, err := gocdi.Resolve[*ShoppingCart](alice, c)
		require.NoError(t, err)
		cartB, err := gocdi.Resolve[*ShoppingCart](bob, c)
		require.NoError(t, err)
		cartB.AddItem("keeps")

		require.NoError(t, c.InvalidateSession("alice"))

		fresh, err := gocdi.Resolve[*ShoppingCart](alice, c)
		require.NoError(t, err)
		assert.NotSame(t, cartA, fresh)

		still, err := gocdi.Resolve[*ShoppingCart](bob, c)
		require.NoError(t, err)
		assert.Same(t, cartB, still)
	})
}

func TestIntegration_Passivation(t *testing.T) {
	t.Run("state survives a container restart", func(t *testing.T) {
		t.Parallel()

		blobs := passivation.NewMemoryStore()
		ctx := context.Background()

		first := gocdi.New(gocdi.WithPassivationStore(blobs))
		require.NoError(t, first.Add(cartDef()))
		require.NoError(t, first.Build(ctx))

		cart, err := gocdi.Resolve[*ShoppingCart](gocdi.WithSession(ctx, "alice"), first)
		require.NoError(t, err)
		cart.AddItem("book")
		cart.AddItem("pen")

		require.NoError(t, first.PassivateSession(ctx, "alice"))
		require.NoError(t, first.Shutdown(ctx))

		second := gocdi.New(gocdi.WithPassivationStore(blobs))
		require.NoError(t, second.Add(cartDef()))
		require.NoError(t, second.Build(ctx))
		defer second.Shutdown(ctx)

		require.NoError(t, second.ActivateSession(ctx, "alice"))

		restored, err := gocdi.Resolve[*ShoppingCart](gocdi.WithSession(ctx, "alice"), second)
		require.NoError(t, err)
		assert.Equal(t, []string{"book", "pen"}, restored.Items)
		assert.True(t, restored.Sealed)
		assert.Equal(t, 1, restored.Activations)
	})

	t.Run("restores under a new identifier", func(t *testing.T) {
		t.Parallel()

		blobs := passivation.NewMemoryStore()
		ctx := context.Background()

		c := buildContainer(t, []gocdi.Option{gocdi.WithPassivationStore(blobs)}, cartDef())

		cart, err := gocdi.Resolve[*ShoppingCart](gocdi.WithSession(ctx, "alice"), c)
		require.NoError(t, err)
		cart.AddItem("book")

		require.NoError(t, c.PassivateSession(ctx, "alice"))
		require.NoError(t, c.ActivateSessionAs(ctx, "alice", "alice-next"))

		restored, err := gocdi.Resolve[*ShoppingCart](gocdi.WithSession(ctx, "alice-next"), c)
		require.NoError(t, err)
		assert.Equal(t, []string{"book"}, restored.Items)
		assert.Equal(t, 1, restored.Activations)
	})

	t.Run("failed passivation keeps the session intact", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		c := buildContainer(t, nil,
			gocdi.Component[FragileCart]().WithScope(gocdi.Session).OnPrePassivate("Seal"))

		cart, err := gocdi.Resolve[*FragileCart](gocdi.WithSession(ctx, "alice"), c)
		require.NoError(t, err)
		cart.State = "precious"

		require.Error(t, c.PassivateSession(ctx, "alice"))

		still, err := gocdi.Resolve[*FragileCart](gocdi.WithSession(ctx, "alice"), c)
		require.NoError(t, err)
		assert.Same(t, cart, still)
		assert.Equal(t, "precious", still.State)
	})

	t.Run("passivated session leaves memory", func(t *testing.T) {
		t.Parallel()

		blobs := passivation.NewMemoryStore()
		ctx := context.Background()

		c := buildContainer(t, []gocdi.Option{gocdi.WithPassivationStore(blobs)}, cartDef())

		cart, err := gocdi.Resolve[*ShoppingCart](gocdi.WithSession(ctx, "alice"), c)
		require.NoError(t, err)
		cart.AddItem("book")

		require.NoError(t, c.PassivateSession(ctx, "alice"))

		// Resolving now starts an empty partition instead of reviving the
		// passivated one.
		fresh, err := gocdi.Resolve[*ShoppingCart](gocdi.WithSession(ctx, "alice"), c)
		require.NoError(t, err)
		assert.NotSame(t, cart, fresh)
		assert.Empty(t, fresh.Items)
	})

	t.Run("activating an unknown session fails", func(t *testing.T) {
		t.Parallel()

		blobs := passivation.NewMemoryStore()
		c := buildContainer(t, []gocdi.Option{gocdi.WithPassivationStore(blobs)}, cartDef())

		err := c.ActivateSession(context.Background(), "ghost")
		require.ErrorIs(t, err, passivation.ErrNotFound)
	})
}

type PaymentSettled struct {
	Amount int
}

type PaymentAuditor struct {
	mu   sync.Mutex
	Seen []int
}

func (a *PaymentAuditor) Record(e PaymentSettled) {
	a.mu.Lock()
	a.Seen = append(a.Seen, e.Amount)
	a.mu.Unlock()
}

func (a *PaymentAuditor) amounts() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.Seen...)
}

func auditorDef(async bool) *gocdi.ComponentDef {
	return gocdi.Component[PaymentAuditor]().
		WithScope(gocdi.Singleton).
		AddObserver(gocdi.ObserverDef{Method: "Record", Async: async})
}

type CheckoutService struct {
	Gateway PaymentGateway              `inject:""`
	Settled gocdi.Event[PaymentSettled] `inject:""`

	Receipts []string
}

func (s *CheckoutService) Checkout(ctx context.Context, amount int) error {
	s.Receipts = append(s.Receipts, s.Gateway.Charge(amount))
	return s.Settled.Fire(ctx, PaymentSettled{Amount: amount})
}

func TestIntegration_Events(t *testing.T) {
	t.Run("container fire reaches observers", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil, auditorDef(false))

		require.NoError(t, c.Fire(context.Background(), PaymentSettled{Amount: 42}))

		auditor, err := gocdi.Resolve[*PaymentAuditor](context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, []int{42}, auditor.amounts())
	})

	t.Run("event sink fires from inside a bean", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil,
			auditorDef(false),
			gocdi.Component[StripeGateway]().WithScope(gocdi.Singleton),
			gocdi.Component[CheckoutService]().WithScope(gocdi.Singleton))

		svc, err := gocdi.Resolve[*CheckoutService](context.Background(), c)
		require.NoError(t, err)
		require.NoError(t, svc.Checkout(context.Background(), 30))

		assert.Equal(t, []string{"stripe:30"}, svc.Receipts)
		auditor, err := gocdi.Resolve[*PaymentAuditor](context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, []int{30}, auditor.amounts())
	})

	t.Run("async delivery runs on the executor", func(t *testing.T) {
		t.Parallel()

		inline := func(fn func()) { fn() }
		c := buildContainer(t, []gocdi.Option{gocdi.WithExecutor(inline)}, auditorDef(true))

		require.NoError(t, <-c.FireAsync(context.Background(), PaymentSettled{Amount: 8}))

		auditor, err := gocdi.Resolve[*PaymentAuditor](context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, []int{8}, auditor.amounts())
	})

	t.Run("phase bound observers wait for the transaction", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil,
			gocdi.Component[PaymentAuditor]().
				WithScope(gocdi.Singleton).
				AddObserver(gocdi.ObserverDef{Method: "Record", Phase: gocdi.AfterSuccess}))

		txn := gocdi.NewCoordinator()
		ctx := gocdi.WithCoordinator(context.Background(), txn)
		require.NoError(t, c.Fire(ctx, PaymentSettled{Amount: 77}))

		auditor, err := gocdi.Resolve[*PaymentAuditor](context.Background(), c)
		require.NoError(t, err)
		assert.Empty(t, auditor.amounts())

		txn.Complete(true)
		assert.Equal(t, []int{77}, auditor.amounts())
	})
}

type ReceiptPrinter struct {
	Gateway gocdi.Ref[PaymentGateway] `inject:""`
}

func (p *ReceiptPrinter) Print(ctx context.Context, amount int) (string, error) {
	gateway, err := p.Gateway.Get(ctx)
	if err != nil {
		return "", err
	}
	return "receipt " + gateway.Charge(amount), nil
}

func TestIntegration_DeferredReference(t *testing.T) {
	t.Run("ref resolves on demand", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil,
			gocdi.Component[StripeGateway]().WithScope(gocdi.Singleton),
			gocdi.Component[ReceiptPrinter]().WithScope(gocdi.Singleton))

		printer, err := gocdi.Resolve[*ReceiptPrinter](context.Background(), c)
		require.NoError(t, err)

		receipt, err := printer.Print(context.Background(), 12)
		require.NoError(t, err)
		assert.Equal(t, "receipt stripe:12", receipt)
	})
}

type CartSummaryService struct {
	Cart *ShoppingCart `inject:""`
}

type CartSummaryRef struct {
	Cart gocdi.Ref[*ShoppingCart] `inject:""`
}

func TestIntegration_SessionBoundary(t *testing.T) {
	t.Run("capturing a session bean in a singleton fails deployment", func(t *testing.T) {
		t.Parallel()

		c := gocdi.New()
		require.NoError(t, c.Add(cartDef()))
		require.NoError(t, c.Add(
			gocdi.Component[CartSummaryService]().WithScope(gocdi.Singleton)))

		err := c.Build(context.Background())
		require.ErrorIs(t, err, gocdi.ErrDeploymentFailed)
		assert.Contains(t, err.Error(), "use a deferred reference")
	})

	t.Run("a deferred reference crosses the boundary per session", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil, cartDef(),
			gocdi.Component[CartSummaryRef]().WithScope(gocdi.Singleton))

		summary, err := gocdi.Resolve[*CartSummaryRef](context.Background(), c)
		require.NoError(t, err)

		alice := gocdi.WithSession(context.Background(), "alice")
		cartA, err := summary.Cart.Get(alice)
		require.NoError(t, err)
		cartA.AddItem("book")

		bob := gocdi.WithSession(context.Background(), "bob")
		cartB, err := summary.Cart.Get(bob)
		require.NoError(t, err)
		assert.Empty(t, cartB.Items)
		assert.NotSame(t, cartA, cartB)
	})
}

type HandlerRegistry struct {
	Gateways gocdi.Instance[PaymentGateway] `inject:""`
}

func TestIntegration_InstanceHandle(t *testing.T) {
	t.Run("programmatic lookup", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil,
			gocdi.Component[StripeGateway]().WithScope(gocdi.Singleton).Qualify(gocdi.NewQualifier("Fast")),
			gocdi.Component[PayPalGateway]().WithScope(gocdi.Singleton).Qualify(gocdi.NewQualifier("Cheap")),
			gocdi.Component[HandlerRegistry]().WithScope(gocdi.Singleton))

		reg, err := gocdi.Resolve[*HandlerRegistry](context.Background(), c)
		require.NoError(t, err)

		assert.True(t, reg.Gateways.Select(gocdi.Any).IsAmbiguous())

		fast := reg.Gateways.Select(gocdi.NewQualifier("Fast"))
		require.True(t, fast.IsResolvable())
		gateway, err := fast.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "stripe:4", gateway.Charge(4))

		all, err := reg.Gateways.Select(gocdi.Any).All(context.Background())
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("enumerates implementation classes without instantiating", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil,
			gocdi.Component[StripeGateway]().WithScope(gocdi.Singleton).Qualify(gocdi.NewQualifier("Fast")),
			gocdi.Component[PayPalGateway]().WithScope(gocdi.Singleton).Qualify(gocdi.NewQualifier("Cheap")),
			gocdi.Component[HandlerRegistry]().WithScope(gocdi.Singleton))

		reg, err := gocdi.Resolve[*HandlerRegistry](context.Background(), c)
		require.NoError(t, err)

		classes := reg.Gateways.Select(gocdi.Any).Implementations()
		assert.ElementsMatch(t, []reflect.Type{
			reflect.TypeOf(StripeGateway{}),
			reflect.TypeOf(PayPalGateway{}),
		}, classes)

		assert.Equal(t, []reflect.Type{reflect.TypeOf(StripeGateway{})},
			reg.Gateways.Select(gocdi.NewQualifier("Fast")).Implementations())
	})
}

type Ledger struct {
	Open bool
}

type LedgerConfig struct{}

func (c *LedgerConfig) OpenLedger() *Ledger { return &Ledger{Open: true} }

func (c *LedgerConfig) CloseLedger(l *Ledger) { l.Open = false }

func TestIntegration_Producers(t *testing.T) {
	t.Run("producer supplies and disposer reclaims", func(t *testing.T) {
		t.Parallel()

		c := gocdi.New()
		require.NoError(t, c.Add(
			gocdi.Component[LedgerConfig]().
				WithScope(gocdi.Singleton).
				AddProducer(gocdi.ProducerDef{Method: "OpenLedger", ScopeDecls: []gocdi.Scope{gocdi.Singleton}}).
				AddDisposer("CloseLedger")))
		require.NoError(t, c.Build(context.Background()))

		ledger, err := gocdi.Resolve[*Ledger](context.Background(), c)
		require.NoError(t, err)
		assert.True(t, ledger.Open)

		require.NoError(t, c.Shutdown(context.Background()))
		assert.False(t, ledger.Open)
	})
}

var (
	timingMu      sync.Mutex
	timingEntries []string
)

func timingLog(entry string) {
	timingMu.Lock()
	timingEntries = append(timingEntries, entry)
	timingMu.Unlock()
}

func timingSnapshot() []string {
	timingMu.Lock()
	defer timingMu.Unlock()
	return append([]string(nil), timingEntries...)
}

type TimingInterceptor struct{}

func (i *TimingInterceptor) Before(inv *gocdi.Invocation) error {
	timingLog(inv.Stage)
	return inv.Proceed()
}

type AuditedGateway struct {
	Next PaymentGateway `inject:"delegate"`
}

func (g *AuditedGateway) Charge(amount int) string {
	return "audited(" + g.Next.Charge(amount) + ")"
}

func TestIntegration_InterceptorsAndDecorators(t *testing.T) {
	t.Run("interceptor observes construction of bound beans", func(t *testing.T) {
		c := buildContainer(t, nil,
			gocdi.Component[TimingInterceptor]().AsInterceptor(gocdi.InterceptorDef{
				Bindings:        gocdi.Qualifiers{gocdi.NewQualifier("Timed")},
				AroundConstruct: "Before",
			}),
			gocdi.Component[StripeGateway]().
				WithScope(gocdi.Singleton).
				BindInterceptors(gocdi.NewQualifier("Timed")))

		before := len(timingSnapshot())
		_, err := gocdi.Resolve[PaymentGateway](context.Background(), c)
		require.NoError(t, err)
		assert.Len(t, timingSnapshot(), before+1)
	})

	t.Run("decorator wraps the resolved gateway", func(t *testing.T) {
		t.Parallel()

		c := buildContainer(t, nil,
			gocdi.Component[StripeGateway]().WithScope(gocdi.Singleton),
			gocdi.Component[AuditedGateway]().AsDecorator(gocdi.DecoratorDef{DelegateField: "Next"}))

		gateway, err := gocdi.Resolve[PaymentGateway](context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, "audited(stripe:6)", gateway.Charge(6))
	})
}
