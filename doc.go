// Package gocdi provides a contexts-and-dependency-injection container for
// Go applications. Components are plain structs registered with typed
// definitions; the container validates them at build time, resolves them by
// type and qualifier, manages their lifecycle per scope, and delivers typed
// events between them.
//
// # Overview
//
// gocdi provides:
//   - Three scopes: Dependent, Singleton, and Session
//   - Type- and qualifier-based resolution with deployment-time validation
//   - Field, constructor, and initializer injection
//   - Producer methods and matching disposers
//   - Alternatives with configuration- or priority-based enablement
//   - Lifecycle interceptors bound by annotation, and decorators
//   - Synchronous, asynchronous, and transaction-phase observers
//   - Session passivation to a pluggable store (in-memory or Redis)
//
// # Basic Usage
//
// Create a container, register component definitions, build, and resolve:
//
//	c := gocdi.New()
//	c.Add(
//	    gocdi.Component[StripeGateway]().WithScope(gocdi.Singleton),
//	    gocdi.Component[CheckoutService]().WithScope(gocdi.Session),
//	)
//	if err := c.Build(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Shutdown(ctx)
//
//	gateway, err := gocdi.Resolve[PaymentGateway](ctx, c)
//
// # Scopes
//
//   - Dependent: a fresh instance per injection point, destroyed with its owner
//   - Singleton: one instance for the container's lifetime
//   - Session: one instance per session identifier, isolated between sessions
//
// Session resolution requires an active session on the context:
//
//	ctx = gocdi.WithSession(ctx, "session-42")
//	cart, err := gocdi.Resolve[*Cart](ctx, c)
//
// # Qualifiers
//
// When several beans share a type, qualifiers discriminate among them:
//
//	c.Add(
//	    gocdi.Component[StripeGateway]().Qualify(gocdi.Named("stripe")),
//	    gocdi.Component[PayPalGateway]().Qualify(gocdi.Named("paypal")),
//	)
//
//	gateway, err := gocdi.Resolve[PaymentGateway](ctx, c, gocdi.Named("stripe"))
//
// Struct fields request qualifiers through the inject tag:
//
//	type Checkout struct {
//	    Gateway PaymentGateway `inject:"name=stripe"`
//	}
//
// # Alternatives
//
// An alternative replaces the regular bean for its types when enabled,
// either by a priority marker or by listing it in the configuration:
//
//	discovery: annotated
//	alternatives:
//	  - mypkg.SandboxGateway
//
// # Events
//
// Observer methods receive typed payloads; firing is type-safe through the
// injected Event sink:
//
//	type Checkout struct {
//	    Placed gocdi.Event[OrderPlaced] `inject:""`
//	}
//
// Observers declare delivery mode and, optionally, a transaction phase so
// notification waits for the surrounding unit of work to complete.
//
// # Passivation
//
// Session state survives restarts: PassivateSession serializes a session's
// instances to the configured store and ActivateSession restores them,
// re-associating each entry with the currently deployed beans.
//
// # Error Handling
//
// Failures carry typed errors:
//   - DeploymentError: aggregate of all definition problems found at Build
//   - UnsatisfiedError: no candidate matches a request
//   - AmbiguousError: several candidates match and none wins
//   - ContextNotActiveError: resolution against an inactive scope
//   - CreationError, DisposalError: lifecycle callback failures
//
// # Thread Safety
//
// A built container is safe for concurrent use. Scope contexts serialize
// instance creation so concurrent resolutions of the same bean observe a
// single instance.
package gocdi
