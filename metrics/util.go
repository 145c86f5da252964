package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce registers collector with the default registry. When a
// collector with the same descriptors is already registered, that one is
// returned instead so that every instance shares the same series. Any other
// registration error panics.
func registerOnce[C prometheus.Collector](collector C) C {
	return registerWith(prometheus.DefaultRegisterer, collector)
}

func registerWith[C prometheus.Collector](r prometheus.Registerer, collector C) C {
	err := r.Register(collector)
	if err == nil {
		return collector
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		panic(err)
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		panic(err)
	}
	return existing
}
