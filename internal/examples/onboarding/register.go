package onboarding

import "github.com/arcwelder/bpmengine/internal/engine/registry"

// Register binds every class in this example under the names
// OnStart/Start reference by string (spec.md section 9's explicit
// registry, replacing the original's dynamic import-by-name lookup).
// Callers (typically cmd/worker) call this once at startup alongside
// their own domain activity classes.
func Register(reg *registry.Registry) {
	reg.MustRegister("OnboardEmployee", func() any { return NewOnboardEmployee() })
	reg.MustRegister("RegisterEmployee", func() any { return NewRegisterEmployee() })
	reg.MustRegister("ProvisionOffice", func() any { return NewProvisionOffice() })
	reg.MustRegister("ProvisionComputer", func() any { return NewProvisionComputer() })
	reg.MustRegister("HealthCheckup", func() any { return NewHealthCheckup() })
}
