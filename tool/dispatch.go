package tool

import (
	"fmt"
	"os/exec"
	"sync"
)

// Resolver maps a runtime kind to an executable interpreter path. A
// non-empty program names the exact binary to locate instead of the
// runtime's default candidates: the tool's own command for the cli
// runtime, or a declared shell override.
type Resolver interface {
	Resolve(kind RuntimeKind, program string) (string, error)
}

// interpreterCandidates lists the binaries tried, in order, for each
// interpreter runtime. pwsh is preferred over Windows PowerShell and
// python3 over an unversioned python.
var interpreterCandidates = map[RuntimeKind][]string{
	RuntimePowerShell: {"pwsh", "powershell"},
	RuntimePython:     {"python3", "python"},
	RuntimeBash:       {"bash"},
	RuntimeNode:       {"node"},
}

// PathResolver resolves interpreters from PATH and caches the first hit per
// runtime. The lookup function is injectable for tests.
type PathResolver struct {
	mu       sync.Mutex
	cache    map[string]string
	lookPath func(string) (string, error)
}

// NewPathResolver creates a resolver backed by exec.LookPath.
func NewPathResolver() *PathResolver {
	return &PathResolver{
		cache:    make(map[string]string),
		lookPath: exec.LookPath,
	}
}

func (r *PathResolver) Resolve(kind RuntimeKind, program string) (string, error) {
	candidates := interpreterCandidates[kind]
	cacheKey := string(kind)
	if program != "" {
		candidates = []string{program}
		cacheKey = "prog:" + program
	} else if kind == RuntimeCLI {
		return "", fmt.Errorf("cli runtime requires a program name")
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no interpreter candidates for runtime %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if path, ok := r.cache[cacheKey]; ok {
		return path, nil
	}
	var lastErr error
	for _, candidate := range candidates {
		path, err := r.lookPath(candidate)
		if err == nil {
			r.cache[cacheKey] = path
			return path, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("no usable binary for runtime %q (tried %v): %w", kind, candidates, lastErr)
}

// Dispatch resolves the invocation's interpreter and returns the complete
// argv. For the cli runtime the program is replaced with its resolved path.
func Dispatch(resolver Resolver, inv Invocation) ([]string, *InvokeError) {
	program := inv.Program
	if inv.Runtime == RuntimeCLI {
		program = inv.Args[0]
	}
	path, err := resolver.Resolve(inv.Runtime, program)
	if err != nil {
		return nil, NewInvokeError(StageDispatch, CodeRuntimeUnavailable,
			fmt.Sprintf("Runtime %q is not available on this host", inv.Runtime)).
			WithDetail("runtime", string(inv.Runtime)).
			WithCause(err)
	}
	if inv.Runtime == RuntimeCLI {
		argv := make([]string, len(inv.Args))
		copy(argv, inv.Args)
		argv[0] = path
		return argv, nil
	}
	return append([]string{path}, inv.Args...), nil
}
