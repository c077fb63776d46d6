package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/annel0/voxel-chunks/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics инкапсулирует Prometheus-метрики хранилища чанков.
// Все методы безопасны для nil-получателя: компоненты без метрик просто их не передают.
type Metrics struct {
	registry *prometheus.Registry

	chunksCreated    prometheus.Counter
	blocksSet        prometheus.Counter
	chunksEncoded    prometheus.Counter
	decodeFailures   prometheus.Counter
	compressionRatio prometheus.Histogram
	storageOps       *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	loadedChunks     prometheus.Gauge
}

// New создаёт набор метрик в собственном реестре
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chunksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "chunks_created_total",
			Help:      "Число чанков, созданных при первом обращении.",
		}),
		blocksSet: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "blocks_set_total",
			Help:      "Число изменений отдельных блоков.",
		}),
		chunksEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "chunks_encoded_total",
			Help:      "Число RLE-кодирований чанков.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "chunk_decode_failures_total",
			Help:      "Число отклоненных при декодировании записей чанков.",
		}),
		compressionRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxel",
			Name:      "chunk_compression_ratio",
			Help:      "Коэффициент сжатия RLE (4096 / число пар).",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7), // 1 .. 4096
		}),
		storageOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "storage_operations_total",
			Help:      "Операции с хранилищем чанков по типу и результату.",
		}, []string{"op", "result"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "cache_requests_total",
			Help:      "Запросы к кешу чанков (hit/miss/error).",
		}, []string{"result"}),
		loadedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Name:      "loaded_chunks",
			Help:      "Количество чанков, находящихся в памяти мира.",
		}),
	}

	m.registry.MustRegister(
		m.chunksCreated,
		m.blocksSet,
		m.chunksEncoded,
		m.decodeFailures,
		m.compressionRatio,
		m.storageOps,
		m.cacheRequests,
		m.loadedChunks,
	)
	return m
}

// Registry возвращает реестр для экспорта или тестов
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ChunkCreated отмечает создание нового чанка
func (m *Metrics) ChunkCreated(loaded int) {
	if m == nil {
		return
	}
	m.chunksCreated.Inc()
	m.loadedChunks.Set(float64(loaded))
}

// SetLoadedChunks обновляет gauge загруженных чанков
func (m *Metrics) SetLoadedChunks(loaded int) {
	if m == nil {
		return
	}
	m.loadedChunks.Set(float64(loaded))
}

// BlockSet отмечает изменение блока
func (m *Metrics) BlockSet() {
	if m == nil {
		return
	}
	m.blocksSet.Inc()
}

// ChunkEncoded отмечает кодирование чанка и его коэффициент сжатия
func (m *Metrics) ChunkEncoded(ratio float64) {
	if m == nil {
		return
	}
	m.chunksEncoded.Inc()
	m.compressionRatio.Observe(ratio)
}

// DecodeFailed отмечает отклоненную запись
func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

// StorageOp отмечает операцию хранилища; err == nil считается успехом
func (m *Metrics) StorageOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storageOps.WithLabelValues(op, result).Inc()
}

// CacheResult отмечает результат обращения к кешу: "hit", "miss" или "error"
func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// StartHTTP запускает HTTP-эндпоинт /metrics на указанном адресе (например, ":2112").
// Адрес занимается сразу, ошибка привязки возвращается вызывающему.
// Обслуживание идет в фоне; остановка через Shutdown у возвращенного сервера.
func (m *Metrics) StartHTTP(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", srv.Addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
	return srv, nil
}
