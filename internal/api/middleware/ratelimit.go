package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/kmerroute/kmerroute/internal/api/models"
)

// Limit is a request budget per client IP over a sliding window.
type Limit struct {
	Requests int
	Window   time.Duration

	// PerEndpoint gives every path its own budget.
	PerEndpoint bool
}

// Budgets applied by the router.
var (
	// RouteLimit covers route computation. A miss costs a graph query and an
	// OSRM call, and the two route endpoints are budgeted separately.
	RouteLimit = Limit{Requests: 60, Window: time.Minute, PerEndpoint: true}

	// ReadLimit covers status and cache inspection.
	ReadLimit = Limit{Requests: 100, Window: time.Minute}

	// AdminLimit covers cache maintenance.
	AdminLimit = Limit{Requests: 10, Window: time.Minute}
)

// Handler returns middleware enforcing the budget. Rejected requests get a
// 429 problem with Retry-After set to the window length, since httprate does
// not report the exact reset time.
func (l Limit) Handler() func(http.Handler) http.Handler {
	keys := []httprate.KeyFunc{httprate.KeyByRealIP}
	if l.PerEndpoint {
		keys = append(keys, httprate.KeyByEndpoint)
	}
	retryAfter := strconv.Itoa(int(math.Ceil(l.Window.Seconds())))

	return httprate.Limit(l.Requests, l.Window,
		httprate.WithKeyFuncs(keys...),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			problem := models.KindTooManyRequests.New(GetRequestID(r.Context()),
				"request budget of "+strconv.Itoa(l.Requests)+" per "+l.Window.String()+" exhausted")
			problem.Instance = r.URL.Path
			problem.Write(w)
		}),
	)
}
