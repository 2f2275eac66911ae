package risk

import "errors"

// Sentinel errors for the engine. Callers classify them with Classify and
// compare with errors.Is; most are returned wrapped with request detail.
var (
	// ErrUnsupportedDistributionKind is returned when a leaf carries a
	// distribution kind the sampler does not implement.
	ErrUnsupportedDistributionKind = errors.New("unsupported distribution kind")

	// ErrParameterOutOfRange is returned when nTrials or parallelism is
	// non-positive or exceeds the configured maximum. No trials run.
	ErrParameterOutOfRange = errors.New("parameter out of range")

	// ErrTreeTooDeep is returned when an edit would produce a tree deeper
	// than the configured maximum depth.
	ErrTreeTooDeep = errors.New("tree too deep")

	// ErrTreeNotFound is returned by tree stores for unknown tree ids.
	ErrTreeNotFound = errors.New("tree not found")

	// ErrNodeNotFound is returned for node ids absent from a tree snapshot.
	ErrNodeNotFound = errors.New("node not found")

	// ErrVersionConflict is returned by tree stores when a save loses an
	// optimistic version check against a concurrent edit.
	ErrVersionConflict = errors.New("tree version conflict")

	// ErrTooManyConcurrentSimulations is returned by the reject admission
	// policy when the global in-flight limit is reached.
	ErrTooManyConcurrentSimulations = errors.New("too many concurrent simulations")

	// ErrCacheUnavailable is returned when the cache store cannot be
	// reached after bounded retries. Callers must treat cached data as
	// untrustworthy and recompute rather than serve possibly-stale results.
	ErrCacheUnavailable = errors.New("cache store unavailable")

	// ErrInconsistentTree is returned when a snapshot fails structural
	// validation (cycle, orphan, duplicate id, branch with parameters).
	ErrInconsistentTree = errors.New("inconsistent tree")
)

// ErrorKind is the coarse classification used by callers to decide whether
// an error is retryable, a caller bug, or an infrastructure failure.
type ErrorKind int

const (
	// KindUnknown covers errors outside the engine's taxonomy.
	KindUnknown ErrorKind = iota
	// KindValidation: bad request parameters, rejected before any work.
	KindValidation
	// KindResourceExhaustion: concurrency limits hit, retryable after backoff.
	KindResourceExhaustion
	// KindDependencyUnavailable: persistence or cache store unreachable.
	KindDependencyUnavailable
	// KindInternal: invariant violation, fatal for the request.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindResourceExhaustion:
		return "resource_exhaustion"
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Classify maps an error to its ErrorKind. Wrapped errors are recognized
// through errors.Is.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrUnsupportedDistributionKind),
		errors.Is(err, ErrParameterOutOfRange),
		errors.Is(err, ErrTreeTooDeep),
		errors.Is(err, ErrTreeNotFound),
		errors.Is(err, ErrNodeNotFound):
		return KindValidation
	case errors.Is(err, ErrTooManyConcurrentSimulations):
		return KindResourceExhaustion
	case errors.Is(err, ErrCacheUnavailable):
		return KindDependencyUnavailable
	case errors.Is(err, ErrInconsistentTree), errors.Is(err, ErrVersionConflict):
		return KindInternal
	default:
		return KindUnknown
	}
}
