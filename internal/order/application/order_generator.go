package application

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	invdomain "github.com/wyfcoding/orderpipeline/internal/inventory/domain"
	"github.com/wyfcoding/orderpipeline/internal/order/domain"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
	"github.com/wyfcoding/orderpipeline/pkg/metrics"
)

// GeneratorState 生成器状态
type GeneratorState string

const (
	GeneratorIdle       GeneratorState = "Idle"
	GeneratorGenerating GeneratorState = "Generating"
	GeneratorReserving  GeneratorState = "Reserving"
	GeneratorPublishing GeneratorState = "Publishing"
	GeneratorWaiting    GeneratorState = "Waiting"
	GeneratorStopped    GeneratorState = "Stopped"
)

var generatorStates = []string{
	string(GeneratorIdle), string(GeneratorGenerating), string(GeneratorReserving),
	string(GeneratorPublishing), string(GeneratorWaiting), string(GeneratorStopped),
}

// GeneratorConfig 生成器参数
type GeneratorConfig struct {
	StartDelay time.Duration
	// 两次成功发布之间的等待时间在 [MinInterval, MaxInterval] 内均匀分布
	MinInterval         time.Duration
	MaxInterval         time.Duration
	ReservationCooldown time.Duration
	ErrorRetryDelay     time.Duration
	MinItems            int
	MaxItems            int
	MaxQuantity         int
	Currency            string
}

// DefaultGeneratorConfig 默认参数
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		StartDelay:          5 * time.Second,
		MinInterval:         5 * time.Second,
		MaxInterval:         10 * time.Second,
		ReservationCooldown: 5 * time.Second,
		ErrorRetryDelay:     10 * time.Second,
		MinItems:            1,
		MaxItems:            3,
		MaxQuantity:         2,
		Currency:            "SEK",
	}
}

type cycleOutcome int

const (
	cyclePublished cycleOutcome = iota
	cycleNotReserved
)

// OrderGenerator 持续生成订单：随机选品、整体预留库存、构造事件并发布。
// 库存耗尽时进入 Stopped 并返回
type OrderGenerator struct {
	cfg       GeneratorConfig
	products  invdomain.ProductRepository
	publisher domain.EventPublisher
	node      *snowflake.Node
	metrics   *metrics.Metrics
	logger    *slog.Logger
	rng       *rand.Rand
	state     atomic.Value
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) bool
}

// NewOrderGenerator m 可为 nil
func NewOrderGenerator(cfg GeneratorConfig, products invdomain.ProductRepository, publisher domain.EventPublisher, node *snowflake.Node, m *metrics.Metrics) *OrderGenerator {
	def := DefaultGeneratorConfig()
	if cfg.MinItems < 1 {
		cfg.MinItems = def.MinItems
	}
	if cfg.MaxItems < cfg.MinItems {
		cfg.MaxItems = cfg.MinItems
	}
	if cfg.MaxQuantity < 1 {
		cfg.MaxQuantity = def.MaxQuantity
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	seed := uint64(time.Now().UnixNano())
	g := &OrderGenerator{
		cfg:       cfg,
		products:  products,
		publisher: publisher,
		node:      node,
		metrics:   m,
		logger:    logger.With("component", "order_generator"),
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:       func() time.Time { return time.Now().UTC() },
		sleep:     sleepCtx,
	}
	g.setState(GeneratorIdle)
	return g
}

// State 当前状态
func (g *OrderGenerator) State() GeneratorState {
	return g.state.Load().(GeneratorState)
}

func (g *OrderGenerator) setState(s GeneratorState) {
	g.state.Store(s)
	if g.metrics != nil {
		g.metrics.SetGeneratorState(string(s), generatorStates)
	}
}

// Run 阻塞运行直到库存耗尽或 ctx 取消，两种情况均返回 nil
func (g *OrderGenerator) Run(ctx context.Context) error {
	defer g.setState(GeneratorStopped)

	g.logger.InfoContext(ctx, "order generator starting", "total_stock", g.products.TotalAvailableStock(ctx))
	if !g.sleep(ctx, g.cfg.StartDelay) {
		return nil
	}

	for ctx.Err() == nil {
		total := g.products.TotalAvailableStock(ctx)
		g.observeStock(total)
		if total == 0 {
			g.logger.WarnContext(ctx, "no products available in stock, stopping order generation")
			break
		}

		g.setState(GeneratorGenerating)
		event, outcome, err := g.runCycle(ctx)

		var wait time.Duration
		switch {
		case err != nil:
			g.logger.ErrorContext(ctx, "error generating or publishing order event", "error", err)
			wait = g.cfg.ErrorRetryDelay
		case outcome == cycleNotReserved:
			if g.metrics != nil {
				g.metrics.ReservationFailures.Inc()
			}
			g.logger.WarnContext(ctx, "could not reserve stock for order, retrying after cooldown",
				"remaining_stock", g.products.TotalAvailableStock(ctx))
			wait = g.cfg.ReservationCooldown
		default:
			if g.metrics != nil {
				g.metrics.OrdersGenerated.Inc()
			}
			g.logger.InfoContext(ctx, "generated and published order event",
				"order_id", event.OrderID,
				"remaining_stock", g.products.TotalAvailableStock(ctx))
			wait = g.nextInterval()
			g.logger.DebugContext(ctx, "waiting before next order", "delay", wait)
		}

		g.setState(GeneratorWaiting)
		if !g.sleep(ctx, wait) {
			break
		}
	}

	g.logger.InfoContext(ctx, "order generator stopped", "final_stock", g.products.TotalAvailableStock(ctx))
	return nil
}

// runCycle 单个周期，panic 被转换为错误
func (g *OrderGenerator) runCycle(ctx context.Context) (event *domain.OrderSubmittedEvent, outcome cycleOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator cycle panic: %v", r)
		}
	}()

	items := g.pickItems(ctx)
	if len(items) == 0 {
		return nil, cycleNotReserved, nil
	}

	g.setState(GeneratorReserving)
	if !g.products.TryReserve(ctx, items) {
		return nil, cycleNotReserved, nil
	}
	g.observeStock(g.products.TotalAvailableStock(ctx))

	event, err = g.buildEvent(ctx, items)
	if err != nil {
		return nil, cycleNotReserved, err
	}

	g.setState(GeneratorPublishing)
	receipt, err := g.publisher.PublishOrderSubmitted(ctx, event)
	if err != nil {
		return event, cyclePublished, fmt.Errorf("publish %s: %w", event.OrderID, err)
	}
	g.logger.DebugContext(ctx, "order event acknowledged",
		"order_id", event.OrderID, "partition", receipt.Partition, "offset", receipt.Offset)
	return event, cyclePublished, nil
}

// pickItems 随机抽取 MinItems..MaxItems 次，同一商品合并为一行
func (g *OrderGenerator) pickItems(ctx context.Context) []invdomain.ReservationItem {
	count := g.cfg.MinItems + g.rng.IntN(g.cfg.MaxItems-g.cfg.MinItems+1)
	items := make([]invdomain.ReservationItem, 0, count)
	for range count {
		p, ok := g.products.GetRandomAvailable(ctx)
		if !ok {
			return nil
		}
		qty := 1 + g.rng.IntN(g.cfg.MaxQuantity)
		merged := false
		for i := range items {
			if items[i].ProductID == p.ProductID {
				items[i].Quantity += qty
				merged = true
				break
			}
		}
		if !merged {
			items = append(items, invdomain.ReservationItem{ProductID: p.ProductID, Quantity: qty})
		}
	}
	return items
}

// buildEvent 根据已预留的商品构造事件，行金额与总额均为 2 位小数
func (g *OrderGenerator) buildEvent(ctx context.Context, reserved []invdomain.ReservationItem) (*domain.OrderSubmittedEvent, error) {
	now := g.now()
	lines := make([]domain.OrderItem, 0, len(reserved))
	for _, r := range reserved {
		p, ok := g.products.Get(ctx, r.ProductID)
		if !ok {
			return nil, fmt.Errorf("reserved product %s disappeared from catalog", r.ProductID)
		}
		lines = append(lines, domain.OrderItem{
			ProductID:   p.ProductID,
			ProductName: p.Name,
			Sku:         p.SKU(),
			Quantity:    r.Quantity,
			UnitPrice:   p.UnitPrice,
			TotalPrice:  domain.LineTotal(p.UnitPrice, r.Quantity),
			Category:    p.Category,
		})
	}

	customerID, email := randomCustomer(g.rng)
	method := pick(g.rng, paymentMethods)

	return &domain.OrderSubmittedEvent{
		OrderID:         fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), g.node.Generate().String()),
		CustomerID:      customerID,
		CustomerEmail:   email,
		OrderDate:       now.Add(-time.Duration(g.rng.IntN(60)) * time.Minute),
		TotalAmount:     domain.SumItems(lines),
		Currency:        g.cfg.Currency,
		Items:           lines,
		ShippingAddress: randomShippingAddress(g.rng),
		Payment: domain.PaymentInfo{
			PaymentMethod:   method,
			PaymentProvider: paymentProvider(g.rng, method),
			TransactionID:   "TXN-" + strings.ToUpper(uuid.NewString()[:8]),
			ProcessedAt:     now,
			Status:          domain.PaymentStatusCompleted,
		},
		Status:         domain.OrderStatusSubmitted,
		EventTimestamp: now,
		EventID:        uuid.NewString(),
		EventVersion:   domain.EventVersion,
	}, nil
}

func (g *OrderGenerator) nextInterval() time.Duration {
	span := g.cfg.MaxInterval - g.cfg.MinInterval
	if span <= 0 {
		return g.cfg.MinInterval
	}
	return g.cfg.MinInterval + time.Duration(g.rng.Int64N(int64(span)+1))
}

func (g *OrderGenerator) observeStock(total int) {
	if g.metrics != nil {
		g.metrics.AvailableStock.Set(float64(total))
	}
}

// sleepCtx 等待 d，ctx 取消时立即返回 false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

