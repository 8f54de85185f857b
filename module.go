package gocdi

// ModuleOption represents a registration action within a module.
type ModuleOption func(*Container) error

// NewModule creates a new module with the given name and builders.
// Modules are a way to group related component registrations together.
//
// Example:
//
//	var PaymentsModule = gocdi.NewModule("payments",
//	    gocdi.AddComponents(
//	        gocdi.Component[StripeGateway]().WithScope(gocdi.Singleton),
//	        gocdi.Component[CheckoutService]().WithScope(gocdi.Session),
//	    ),
//	)
//
//	var AppModule = gocdi.NewModule("app",
//	    PaymentsModule,
//	    gocdi.AddComponents(gocdi.Component[AuditLog]().WithScope(gocdi.Singleton)),
//	)
func NewModule(name string, builders ...ModuleOption) ModuleOption {
	return func(c *Container) error {
		for _, builder := range builders {
			if builder == nil {
				continue
			}
			if err := builder(c); err != nil {
				return ModuleError{Module: name, Cause: err}
			}
		}
		return nil
	}
}

// AddComponents registers component definitions when the module is applied.
func AddComponents(defs ...*ComponentDef) ModuleOption {
	return func(c *Container) error {
		return c.Add(defs...)
	}
}

// AddStereotype registers a reusable stereotype so later definitions can
// reference it by value.
func AddStereotype(st Stereotype) ModuleOption {
	return func(c *Container) error {
		c.mu.Lock()
		c.stereotypes[st.Name] = st
		c.mu.Unlock()
		return nil
	}
}
