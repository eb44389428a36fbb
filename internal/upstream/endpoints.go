package upstream

// headerMode says how an endpoint wants the access token duplicated into
// HTTP headers. The token is always present in the encoded body as well.
type headerMode int

const (
	headerNone headerMode = iota
	headerAuthToken
	headerBearerAndAuthToken
)

// endpoint is one row of the vendor's RPC surface. Paths and request field
// numbers are the per-endpoint contract; the codec itself stays schema-free.
type endpoint struct {
	Name   string
	Path   string
	Header headerMode
}

const (
	// DefaultBaseURL is the vendor RPC backend all endpoints hang off.
	DefaultBaseURL = "https://web-backend.windlass.io"

	seatService = "wnd.seat_management_pb.SeatManagementService"
	apiService  = "wnd.api_server_pb.ApiServerService"
)

var (
	epGetCurrentUser = endpoint{
		Name:   "GetCurrentUser",
		Path:   seatService + "/GetCurrentUser",
		Header: headerAuthToken,
	}
	epGetPlanStatus = endpoint{
		Name:   "GetPlanStatus",
		Path:   seatService + "/GetPlanStatus",
		Header: headerAuthToken,
	}
	epGetTeamCreditEntries = endpoint{
		Name:   "GetTeamCreditEntries",
		Path:   seatService + "/GetTeamCreditEntries",
		Header: headerAuthToken,
	}
	epUpdateSeats = endpoint{
		Name: "UpdateSeats",
		Path: seatService + "/UpdateSeats",
	}
	epUpdatePlan = endpoint{
		Name: "UpdatePlan",
		Path: seatService + "/UpdatePlan",
	}
	epCancelPlan = endpoint{
		Name: "CancelPlan",
		Path: seatService + "/CancelPlan",
	}
	// Resuming a plan is expressed upstream as cancelling the pending
	// cancellation, so it shares the CancelPlan path.
	epResumePlan = endpoint{
		Name: "ResumePlan",
		Path: seatService + "/CancelPlan",
	}
	epSubscribeToPlan = endpoint{
		Name:   "SubscribeToPlan",
		Path:   seatService + "/SubscribeToPlan",
		Header: headerBearerAndAuthToken,
	}
	epDeleteUser = endpoint{
		Name: "DeleteUser",
		Path: seatService + "/DeleteUser",
	}
	epGetOneTimeAuthToken = endpoint{
		Name: "GetOneTimeAuthToken",
		Path: seatService + "/GetOneTimeAuthToken",
	}
	epGetCascadeModels = endpoint{
		Name: "GetCascadeModels",
		Path: apiService + "/GetCascadeModelConfigsForSite",
	}
	epGetCommandModels = endpoint{
		Name: "GetCommandModels",
		Path: apiService + "/GetCommandModelConfigsForSite",
	}
	epUpsertTeamOrgControls = endpoint{
		Name: "UpsertTeamOrgControls",
		Path: apiService + "/UpsertTeamOrganizationalControlsForSite",
	}
)

// Plan tiers accepted by UpdatePlan and SubscribeToPlan.
var planTiers = map[string]uint64{
	"teams":                  1,
	"pro":                    2,
	"enterprise_saas":        3,
	"hybrid":                 4,
	"enterprise_self_hosted": 5,
	"waitlist_pro":           6,
	"teams_ultimate":         7,
	"pro_ultimate":           8,
	"trial":                  9,
	"enterprise_self_serve":  10,
	"enterprise_saas_pooled": 11,
}

const defaultPlanTier = 10 // enterprise_self_serve

// Payment periods for UpdatePlan/SubscribeToPlan field encoding.
const (
	periodMonthly = 1
	periodYearly  = 2
)
