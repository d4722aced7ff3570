package gate

// LegalStatus is the legal-entity readiness verdict.
type LegalStatus string

const (
	LegalNoAction       LegalStatus = "NO_ACTION"
	LegalSRLRecommended LegalStatus = "SRL_RECOMMENDED"
	LegalSRLRequired    LegalStatus = "SRL_REQUIRED"
)

// Minimum soft signals before incorporation is recommended.
const softSignalThreshold = 2

// LegalInput carries the incorporation triggers. Hard triggers dominate:
// any one of them forces SRL_REQUIRED regardless of the soft signals.
type LegalInput struct {
	// Hard triggers.
	SeniorActivation    bool `json:"senior_activation"`
	DelegationActive    bool `json:"delegation_active"`
	AGILayer            bool `json:"agi_layer"`
	ExecutionCapability bool `json:"execution_capability"`
	RecurringBilling    bool `json:"recurring_billing"`

	// Soft signals.
	RevenueApproaching   bool `json:"revenue_approaching"`
	ThirdPartyContracts  bool `json:"third_party_contracts"`
	ExternalDataHandling bool `json:"external_data_handling"`
	BrandExposure        bool `json:"brand_exposure"`
	HiringPlanned        bool `json:"hiring_planned"`
}

// LegalReadiness is the legal-entity verdict for this request.
type LegalReadiness struct {
	Status        LegalStatus `json:"status"`
	Reason        string      `json:"reason"`
	NotifyFounder bool        `json:"notify_founder"`
}

// EvaluateLegalReadiness decides whether elevated authority may execute without
// an incorporated legal entity. Runs independently of the cost gate; the two
// share no mutable state.
func EvaluateLegalReadiness(in LegalInput) LegalReadiness {
	switch {
	case in.SeniorActivation:
		return required("senior authority activation")
	case in.DelegationActive:
		return required("active delegation")
	case in.AGILayer:
		return required("AGI layer engaged")
	case in.ExecutionCapability:
		return required("execution capability enabled")
	case in.RecurringBilling:
		return required("recurring billing commitment")
	}

	soft := 0
	for _, s := range []bool{
		in.RevenueApproaching,
		in.ThirdPartyContracts,
		in.ExternalDataHandling,
		in.BrandExposure,
		in.HiringPlanned,
	} {
		if s {
			soft++
		}
	}
	if soft >= softSignalThreshold {
		return LegalReadiness{
			Status:        LegalSRLRecommended,
			Reason:        "multiple incorporation signals accumulating",
			NotifyFounder: true,
		}
	}
	return LegalReadiness{Status: LegalNoAction, Reason: "no incorporation pressure"}
}

func required(reason string) LegalReadiness {
	return LegalReadiness{
		Status:        LegalSRLRequired,
		Reason:        reason,
		NotifyFounder: true,
	}
}
