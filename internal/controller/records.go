package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ResQLink/internal/gateway"
	"ResQLink/internal/models"
	apperrors "ResQLink/pkg/errors"
	"ResQLink/pkg/logger"
	"ResQLink/pkg/search"

	"go.uber.org/zap"
)

// 记录来源
const (
	KindSOS     = "sos"
	KindMessage = "message"
)

// SOSRequest 发送求救的参数，Severity 为空时按 critical
type SOSRequest struct {
	Message  string          `json:"message"`
	Severity models.Severity `json:"severity"`
}

// RecordCreated 新记录信号参数
type RecordCreated struct {
	Record models.SOSRecord `json:"record"`
	Kind   string           `json:"kind"`
}

// RecordHit 搜索结果
type RecordHit struct {
	Record    models.SOSRecord    `json:"record"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

// SendSOS 保存一条待中继的求救记录。需要蓝牙已开启，定位可用时附带坐标
func (c *Controller) SendSOS(ctx context.Context, req SOSRequest) (models.SOSRecord, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return models.SOSRecord{}, apperrors.WithCode(apperrors.CodeInvalidArgument, "Message must not be empty").
			WithContext("reason", "sos.message_required")
	}
	sev := req.Severity
	if sev == "" {
		sev = models.SeverityCritical
	}
	if !sev.Valid() {
		return models.SOSRecord{}, apperrors.WithCodef(apperrors.CodeInvalidArgument, "invalid severity %q", sev)
	}
	if c.bluetooth == nil || !c.bluetooth.Enabled() {
		return models.SOSRecord{}, apperrors.WithCode(apperrors.CodePreconditionFailed, "Enable Bluetooth before sending an SOS").
			WithContext("reason", "sos.bluetooth_required")
	}

	rec := models.SOSRecord{
		Message:          msg,
		Timestamp:        c.now().UnixMilli(),
		Status:           models.StatusPending,
		Severity:         sev,
		BluetoothEnabled: true,
	}
	if loc, ok := c.currentLocation(ctx); ok {
		rec.Location = loc.Coordinates
		rec.Accuracy = loc.Accuracy
	}
	return c.persist(ctx, rec, KindSOS)
}

// SendMessage 普通消息同样经记录库中继，严重程度为 low
func (c *Controller) SendMessage(ctx context.Context, text string) (models.SOSRecord, error) {
	msg := strings.TrimSpace(text)
	if msg == "" {
		return models.SOSRecord{}, apperrors.WithCode(apperrors.CodeInvalidArgument, "Message must not be empty").
			WithContext("reason", "sos.message_required")
	}
	rec := models.SOSRecord{
		Message:          msg,
		Timestamp:        c.now().UnixMilli(),
		Status:           models.StatusPending,
		Severity:         models.SeverityLow,
		BluetoothEnabled: c.bluetooth != nil && c.bluetooth.Enabled(),
	}
	return c.persist(ctx, rec, KindMessage)
}

// ShareLocation 取一次位置并作为消息发出
func (c *Controller) ShareLocation(ctx context.Context) (models.SOSRecord, error) {
	st, err := c.EnableLocation(ctx)
	if err != nil {
		return models.SOSRecord{}, err
	}
	if st.Coordinates == nil {
		return models.SOSRecord{}, apperrors.WithCode(apperrors.CodeUnavailable, gateway.ReasonLocationUnavailable.Text)
	}
	text := fmt.Sprintf("📍 Location: %.4f, %.4f", st.Coordinates.Lat, st.Coordinates.Lng)
	return c.SendMessage(ctx, text)
}

// currentLocation 优先用已有坐标，否则发起一次定位；失败时不附带位置
func (c *Controller) currentLocation(ctx context.Context) (gateway.LocationState, bool) {
	if c.location == nil {
		return gateway.LocationState{}, false
	}
	st := c.location.State()
	if st.Coordinates != nil && (st.PermissionGranted || st.Watching) && st.Error == "" {
		return st, true
	}
	st, err := c.location.Request(ctx)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodePermissionDenied) {
			logger.Info("SOS sent without location, permission denied")
		} else {
			logger.Warn("SOS sent without location", zap.Error(err))
		}
		return st, false
	}
	return st, st.Coordinates != nil
}

func (c *Controller) persist(ctx context.Context, rec models.SOSRecord, kind string) (models.SOSRecord, error) {
	if c.store == nil {
		return models.SOSRecord{}, apperrors.ErrStoreNotInitialized
	}
	id, err := c.store.Insert(ctx, rec)
	if err != nil {
		return models.SOSRecord{}, err
	}
	rec.ID = id
	c.metrics.RecordSOS(string(rec.Severity), kind)
	logger.Info("record queued for relay",
		zap.Uint64("id", id),
		zap.String("kind", kind),
		zap.String("severity", string(rec.Severity)),
		zap.Bool("located", rec.Location != nil))
	c.signals.Emit(models.SigSOSCreated, c, RecordCreated{Record: rec, Kind: kind})
	return rec, nil
}

// Records 列出记录，status 为空时返回全部
func (c *Controller) Records(ctx context.Context, status string) ([]models.SOSRecord, error) {
	if c.store == nil {
		return nil, apperrors.ErrStoreNotInitialized
	}
	if status == "" {
		return c.store.ListAll(ctx)
	}
	st, ok := models.ParseStatus(status)
	if !ok {
		return nil, apperrors.WithCodef(apperrors.CodeInvalidArgument, "invalid status %q", status)
	}
	return c.store.ListByStatus(ctx, st)
}

func (c *Controller) PendingRecords(ctx context.Context) ([]models.SOSRecord, error) {
	return c.Records(ctx, string(models.StatusPending))
}

// MarkStatus 更新记录状态；expected 非空时仅在当前状态一致时更新
func (c *Controller) MarkStatus(ctx context.Context, id uint64, status, expected string) error {
	if c.store == nil {
		return apperrors.ErrStoreNotInitialized
	}
	next, ok := models.ParseStatus(status)
	if !ok {
		return apperrors.WithCodef(apperrors.CodeInvalidArgument, "invalid status %q", status)
	}

	if expected != "" {
		exp, ok := models.ParseStatus(expected)
		if !ok {
			return apperrors.WithCodef(apperrors.CodeInvalidArgument, "invalid status %q", expected)
		}
		swapped, err := c.store.CompareAndSwapStatus(ctx, id, exp, next)
		if err != nil {
			c.metrics.RecordStatusUpdate(string(next), apperrors.CodeName(apperrors.GetCode(err)))
			return err
		}
		if !swapped {
			c.metrics.RecordStatusUpdate(string(next), "conflict")
			return apperrors.WithCodef(apperrors.CodePreconditionFailed, "record %d is not %s", id, exp)
		}
	} else if err := c.store.UpdateStatus(ctx, id, next); err != nil {
		c.metrics.RecordStatusUpdate(string(next), apperrors.CodeName(apperrors.GetCode(err)))
		return err
	}

	c.metrics.RecordStatusUpdate(string(next), "ok")
	c.signals.Emit(models.SigSOSStatusChanged, c, models.StatusChange{ID: id, Status: next})
	return nil
}

// RecordQuery 记录检索参数，Severity 为空时不过滤
type RecordQuery struct {
	Text     string
	Severity models.Severity
	Size     int
}

// RecordSearch 检索结果，Facets 按 severity / kind 聚合命中数
type RecordSearch struct {
	Hits   []RecordHit                   `json:"hits"`
	Total  uint64                        `json:"total"`
	Facets map[string][]search.FacetTerm `json:"facets"`
}

// SearchRecords 全文检索消息内容，结果以记录库中的最新数据为准。
// 索引里有而记录库里已没有的文档会从索引删除
func (c *Controller) SearchRecords(ctx context.Context, q RecordQuery) (RecordSearch, error) {
	if c.search == nil {
		return RecordSearch{}, apperrors.WithCode(apperrors.CodeUnsupportedCapability, "search is disabled")
	}
	if strings.TrimSpace(q.Text) == "" {
		return RecordSearch{}, apperrors.WithCode(apperrors.CodeInvalidArgument, "query must not be empty")
	}
	req := search.SearchRequest{
		Keyword:      q.Text,
		SearchFields: []string{"message"},
		Size:         q.Size,
		Highlight:    true,
		Facets: []search.FacetRequest{
			{Name: "severity", Field: "severity", Size: 4},
			{Name: "kind", Field: "kind", Size: 2},
		},
	}
	if q.Severity != "" {
		if !q.Severity.Valid() {
			return RecordSearch{}, apperrors.WithCodef(apperrors.CodeInvalidArgument, "invalid severity %q", q.Severity)
		}
		req.MustTerms = map[string][]string{"severity": {string(q.Severity)}}
	}
	res, err := c.search.Search(ctx, req)
	if err != nil {
		return RecordSearch{}, apperrors.Wrap(err, "search failed")
	}

	out := RecordSearch{Hits: []RecordHit{}, Total: res.Total, Facets: map[string][]search.FacetTerm{}}
	for name, f := range res.Facets {
		out.Facets[name] = f.Terms
	}
	if len(res.Hits) == 0 {
		return out, nil
	}

	all, err := c.Records(ctx, "")
	if err != nil {
		return RecordSearch{}, err
	}
	byID := make(map[uint64]models.SOSRecord, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}

	for _, h := range res.Hits {
		id, err := strconv.ParseUint(h.ID, 10, 64)
		rec, ok := byID[id]
		if err != nil || !ok {
			if derr := c.search.Delete(ctx, h.ID); derr != nil {
				logger.Warn("drop stale search doc failed", zap.String("id", h.ID), zap.Error(derr))
			}
			continue
		}
		out.Hits = append(out.Hits, RecordHit{Record: rec, Score: h.Score, Fragments: h.Fragments})
	}
	return out, nil
}

// SuggestMessages 按前缀补全已发送过的消息，供输入框联想
func (c *Controller) SuggestMessages(ctx context.Context, prefix string, size int) ([]string, error) {
	if c.search == nil {
		return nil, apperrors.WithCode(apperrors.CodeUnsupportedCapability, "search is disabled")
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return []string{}, nil
	}
	out, err := c.search.Suggest(ctx, "message", prefix, size)
	if err != nil {
		return nil, apperrors.Wrap(err, "suggest failed")
	}
	return out, nil
}

// IndexedCount 索引中的文档数，未启用检索时为 0
func (c *Controller) IndexedCount() uint64 {
	if c == nil || c.search == nil {
		return 0
	}
	n, err := c.search.Count()
	if err != nil {
		return 0
	}
	return n
}

// RecordDoc 记录在搜索索引中的文档
func RecordDoc(rec models.SOSRecord, kind string) search.Doc {
	return search.Doc{
		ID:   strconv.FormatUint(rec.ID, 10),
		Type: search.DocTypeRecord,
		Fields: map[string]any{
			"message":   rec.Message,
			"severity":  string(rec.Severity),
			"kind":      kind,
			"timestamp": float64(rec.Timestamp),
		},
	}
}

// Reindex 用记录库内容重建索引，内存索引启动时使用
func (c *Controller) Reindex(ctx context.Context) (int, error) {
	if c.search == nil {
		return 0, nil
	}
	all, err := c.Records(ctx, "")
	if err != nil {
		return 0, err
	}
	docs := make([]search.Doc, 0, len(all))
	for _, r := range all {
		kind := KindSOS
		if r.Severity == models.SeverityLow {
			kind = KindMessage
		}
		docs = append(docs, RecordDoc(r, kind))
	}
	if err := c.search.IndexBatch(ctx, docs); err != nil {
		return 0, apperrors.Wrap(err, "reindex failed")
	}
	return len(docs), nil
}
