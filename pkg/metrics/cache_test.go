package metrics

import "testing"

func TestRegisterCacheMetricsConstructor_Overridable(t *testing.T) {
	prev := newPrometheusCacheMetrics
	defer func() { newPrometheusCacheMetrics = prev }()

	called := false
	RegisterCacheMetricsConstructor(func() CacheMetrics {
		called = true
		return nil
	})

	InitRegistry()
	NewCacheMetrics()
	if !called {
		t.Error("NewCacheMetrics did not invoke the registered constructor")
	}
}
