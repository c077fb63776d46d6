package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-chunks/internal/logging"
	"github.com/nats-io/nats.go"
)

// NATSInvalidator реализует CacheInvalidator используя NATS Pub/Sub.
// Рассылает ключи измененных чанков между узлами, разделяющими хранилище.
//
// Особенности:
// - Автоматическое переподключение при сбоях
// - Повторно доставленные сообщения отбрасываются
// - Собственные сообщения узла игнорируются
type NATSInvalidator struct {
	conn    *nats.Conn
	config  *InvalidatorConfig
	nodeID  string
	log     *logging.Logger
	closeMu sync.Once

	subMu        sync.Mutex
	subscription *nats.Subscription
	handler      InvalidationHandler

	stopCh chan struct{}
	wg     sync.WaitGroup

	recentKeys map[string]time.Time
	keysMutex  sync.RWMutex

	publishedCount int64
	receivedCount  int64
	errorsCount    int64
}

// InvalidatorConfig содержит конфигурацию для NATS invalidator.
type InvalidatorConfig struct {
	NATSURL string
	Subject string

	MaxReconnects int
	ReconnectWait time.Duration

	// Время хранения отметок о полученных сообщениях
	DedupeWindow time.Duration

	PublishTimeout time.Duration
}

// InvalidationMessage представляет сообщение об инвалидации чанка.
type InvalidationMessage struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

// InvalidatorStats содержит счетчики invalidator.
type InvalidatorStats struct {
	Published int64 `json:"published"`
	Received  int64 `json:"received"`
	Errors    int64 `json:"errors"`
	Connected bool  `json:"connected"`
}

// NewNATSInvalidator подключается к NATS.
//
// Параметры:
//
//	config - конфигурация NATS соединения
//	nodeID - уникальный идентификатор узла
func NewNATSInvalidator(config *InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	if nodeID == "" {
		return nil, errors.New("nats invalidator requires a node id")
	}
	if config.Subject == "" {
		config.Subject = "voxel.chunk.invalidate"
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}
	if config.DedupeWindow == 0 {
		config.DedupeWindow = 5 * time.Second
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = 5 * time.Second
	}

	log := logging.GetCacheLogger()

	opts := []nats.Option{
		nats.Name("voxel-chunks-" + nodeID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n := &NATSInvalidator{
		conn:       conn,
		config:     config,
		nodeID:     nodeID,
		log:        log,
		stopCh:     make(chan struct{}),
		recentKeys: make(map[string]time.Time),
	}
	n.startDedupeCleanup()

	log.Info("NATS invalidator initialized: %s (subject: %s, node: %s)", config.NATSURL, config.Subject, nodeID)
	return n, nil
}

// PublishInvalidation отправляет уведомление об инвалидации ключа.
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	data, err := json.Marshal(&InvalidationMessage{
		Key:       key,
		Timestamp: time.Now(),
		NodeID:    n.nodeID,
	})
	if err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.conn.Publish(n.config.Subject, data); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.config.PublishTimeout)
	defer cancel()
	if err := n.conn.FlushWithContext(ctx); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		return fmt.Errorf("failed to flush invalidation: %w", err)
	}

	atomic.AddInt64(&n.publishedCount, 1)
	n.log.Debug("Published invalidation for key: %s", key)
	return nil
}

// SubscribeInvalidations подписывается на уведомления об инвалидации.
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	if n.subscription != nil {
		return errors.New("already subscribed to invalidations")
	}

	n.handler = handler
	sub, err := n.conn.Subscribe(n.config.Subject, n.handleInvalidationMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		sub.Unsubscribe()
		return fmt.Errorf("failed to confirm subscription: %w", err)
	}
	n.subscription = sub

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
		case <-n.stopCh:
		}
		n.unsubscribe()
	}()

	n.log.Info("Subscribed to chunk invalidations on subject: %s", n.config.Subject)
	return nil
}

// Close отписывается и закрывает соединение. Повторный вызов безопасен.
func (n *NATSInvalidator) Close() error {
	n.closeMu.Do(func() {
		close(n.stopCh)
		n.wg.Wait()
		n.unsubscribe()
		n.conn.Close()
		n.log.Info("NATS invalidator closed")
	})
	return nil
}

// Stats возвращает счетчики invalidator.
func (n *NATSInvalidator) Stats() InvalidatorStats {
	return InvalidatorStats{
		Published: atomic.LoadInt64(&n.publishedCount),
		Received:  atomic.LoadInt64(&n.receivedCount),
		Errors:    atomic.LoadInt64(&n.errorsCount),
		Connected: n.conn.IsConnected(),
	}
}

func (n *NATSInvalidator) handleInvalidationMessage(msg *nats.Msg) {
	atomic.AddInt64(&n.receivedCount, 1)

	var m InvalidationMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		n.log.Error("Failed to unmarshal invalidation message: %v", err)
		return
	}

	if m.NodeID == n.nodeID {
		return
	}

	// Повторная доставка того же сообщения
	dedupeKey := fmt.Sprintf("%s|%s|%d", m.NodeID, m.Key, m.Timestamp.UnixNano())
	if n.isDuplicate(dedupeKey) {
		return
	}
	n.recordKey(dedupeKey)

	n.subMu.Lock()
	handler := n.handler
	n.subMu.Unlock()
	if handler == nil {
		return
	}

	if err := handler(m.Key); err != nil {
		atomic.AddInt64(&n.errorsCount, 1)
		n.log.Error("Invalidation handler failed for key %s: %v", m.Key, err)
	}
}

func (n *NATSInvalidator) unsubscribe() {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	if n.subscription == nil {
		return
	}
	if err := n.subscription.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		n.log.Error("Failed to unsubscribe from invalidations: %v", err)
	}
	n.subscription = nil
	n.handler = nil
}

func (n *NATSInvalidator) isDuplicate(key string) bool {
	n.keysMutex.RLock()
	defer n.keysMutex.RUnlock()

	lastSeen, exists := n.recentKeys[key]
	return exists && time.Since(lastSeen) < n.config.DedupeWindow
}

func (n *NATSInvalidator) recordKey(key string) {
	n.keysMutex.Lock()
	defer n.keysMutex.Unlock()

	n.recentKeys[key] = time.Now()
}

func (n *NATSInvalidator) startDedupeCleanup() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ticker := time.NewTicker(n.config.DedupeWindow)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n.cleanupDedupe()
			case <-n.stopCh:
				return
			}
		}
	}()
}

func (n *NATSInvalidator) cleanupDedupe() {
	n.keysMutex.Lock()
	defer n.keysMutex.Unlock()

	now := time.Now()
	for key, ts := range n.recentKeys {
		if now.Sub(ts) > n.config.DedupeWindow {
			delete(n.recentKeys, key)
		}
	}
}
