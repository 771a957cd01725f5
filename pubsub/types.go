package pubsub

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Topic names used by the trading pipeline. Topics are created lazily on
// first use, so these are routing keys rather than pre-registered resources.
const (
	TopicMarketState = "market_state"
	TopicTradeSignal = "trade_signal"
	TopicTaxUpdate   = "tax_update"
	TopicExecuted    = "executed"
)

var (
	marketStateJSON     = []byte(`{"type":"market_state"}`)
	tradeSignalJSON     = []byte(`{"type":"trade_signal"}`)
	taxUpdateJSON       = []byte(`{"type":"tax_update"}`)
	executionReportJSON = []byte(`{"type":"execution_report"}`)
)

// Broker hands out topics. A topic that was never used before is created on
// the spot; asking for the same id twice returns the same topic.
type Broker interface {
	Topic(context.Context, string) Topic

	// Shutdown stops accepting publishes and waits for in-flight handler
	// invocations until the context expires. Handlers still running at that
	// point are abandoned, not interrupted.
	Shutdown(context.Context) error
}

type Topic interface {
	Publish(context.Context, Event) error
	Subscribe(context.Context, Handler) (Subscription, error)
}

type Subscription interface {
	ID() string
	Unsubscribe()
}

// Handler processes one event. Handlers run on their own goroutine and may
// block (simulated latency) or publish derived events; they must not assume
// any ordering relative to other handlers.
type Handler func(context.Context, Event)

// Event is the sealed set of messages that travel over the bus.
type Event interface {
	pubsubEvent()
}

// Action is a trade signal decision.
type Action string

const (
	ActionScalping   Action = "scalping"
	ActionSwingTrade Action = "swing_trade"
	ActionHold       Action = "hold"
)

// StatusExecuted is the terminal status carried by an ExecutionReport.
const StatusExecuted = "executed"

// MarketState is a snapshot of the simulated market: a discrete state label
// plus named numeric indicators. Indicator order is preserved so marshaled
// snapshots are stable.
type MarketState struct {
	State      string                                  `json:"state"`
	Indicators *orderedmap.OrderedMap[string, float64] `json:"indicators,omitempty"`
	Sender     string                                  `json:"sender,omitempty"`
	Timestamp  strfmt.DateTime                         `json:"timestamp,omitempty"`
	Meta       gjson.Result                            `json:"meta,omitempty"`
}

func (MarketState) pubsubEvent() {}

// MarshalJSON implements custom JSON marshaling for MarketState
func (m MarketState) MarshalJSON() ([]byte, error) {
	result := marketStateJSON

	var err error
	result, err = sjson.SetBytes(result, "state", m.State)
	if err != nil {
		return nil, err
	}

	if m.Indicators != nil && m.Indicators.Len() > 0 {
		ib, err := json.Marshal(m.Indicators)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal indicators: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "indicators", ib)
		if err != nil {
			return nil, err
		}
	}

	return marshalEnvelope(result, m.Sender, m.Timestamp, m.Meta)
}

// UnmarshalJSON implements custom JSON unmarshaling for MarketState
func (m *MarketState) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "market_state" {
		return fmt.Errorf("missing or invalid type, expected 'market_state'")
	}

	state := gjson.GetBytes(data, "state")
	if !state.Exists() {
		return fmt.Errorf("missing required field 'state'")
	}
	m.State = state.String()

	if indicators := gjson.GetBytes(data, "indicators"); indicators.Exists() {
		om := orderedmap.New[string, float64]()
		indicators.ForEach(func(key, value gjson.Result) bool {
			om.Set(key.String(), value.Float())
			return true
		})
		m.Indicators = om
	}

	unmarshalEnvelope(data, &m.Sender, &m.Timestamp, &m.Meta)
	return nil
}

// TradeSignal is the strategy selector's decision for one market state.
type TradeSignal struct {
	Action    Action          `json:"action"`
	Details   string          `json:"details,omitempty"`
	State     string          `json:"state,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
	Meta      gjson.Result    `json:"meta,omitempty"`
}

func (TradeSignal) pubsubEvent() {}

// MarshalJSON implements custom JSON marshaling for TradeSignal
func (s TradeSignal) MarshalJSON() ([]byte, error) {
	result := tradeSignalJSON

	var err error
	result, err = sjson.SetBytes(result, "action", string(s.Action))
	if err != nil {
		return nil, err
	}

	if s.Details != "" {
		result, err = sjson.SetBytes(result, "details", s.Details)
		if err != nil {
			return nil, err
		}
	}

	if s.State != "" {
		result, err = sjson.SetBytes(result, "state", s.State)
		if err != nil {
			return nil, err
		}
	}

	return marshalEnvelope(result, s.Sender, s.Timestamp, s.Meta)
}

// UnmarshalJSON implements custom JSON unmarshaling for TradeSignal
func (s *TradeSignal) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "trade_signal" {
		return fmt.Errorf("missing or invalid type, expected 'trade_signal'")
	}

	action := gjson.GetBytes(data, "action")
	if !action.Exists() {
		return fmt.Errorf("missing required field 'action'")
	}
	s.Action = Action(action.String())

	if details := gjson.GetBytes(data, "details"); details.Exists() {
		s.Details = details.String()
	}
	if state := gjson.GetBytes(data, "state"); state.Exists() {
		s.State = state.String()
	}

	unmarshalEnvelope(data, &s.Sender, &s.Timestamp, &s.Meta)
	return nil
}

// TaxUpdate records the withholding computed for one simulated trade.
// TaxWithheld is zero whenever Profit is zero or negative.
type TaxUpdate struct {
	Profit      float64         `json:"profit"`
	TaxWithheld float64         `json:"tax_withheld"`
	Sender      string          `json:"sender,omitempty"`
	Timestamp   strfmt.DateTime `json:"timestamp,omitempty"`
	Meta        gjson.Result    `json:"meta,omitempty"`
}

func (TaxUpdate) pubsubEvent() {}

// MarshalJSON implements custom JSON marshaling for TaxUpdate
func (u TaxUpdate) MarshalJSON() ([]byte, error) {
	result := taxUpdateJSON

	var err error
	result, err = sjson.SetBytes(result, "profit", u.Profit)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "tax_withheld", u.TaxWithheld)
	if err != nil {
		return nil, err
	}

	return marshalEnvelope(result, u.Sender, u.Timestamp, u.Meta)
}

// UnmarshalJSON implements custom JSON unmarshaling for TaxUpdate
func (u *TaxUpdate) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "tax_update" {
		return fmt.Errorf("missing or invalid type, expected 'tax_update'")
	}

	profit := gjson.GetBytes(data, "profit")
	if !profit.Exists() {
		return fmt.Errorf("missing required field 'profit'")
	}
	u.Profit = profit.Float()

	withheld := gjson.GetBytes(data, "tax_withheld")
	if !withheld.Exists() {
		return fmt.Errorf("missing required field 'tax_withheld'")
	}
	u.TaxWithheld = withheld.Float()

	unmarshalEnvelope(data, &u.Sender, &u.Timestamp, &u.Meta)
	return nil
}

// ExecutionReport is the executor's acknowledgment that a trade signal has
// been acted on, carrying the original signal it executed.
type ExecutionReport struct {
	Status    string          `json:"status"`
	Signal    TradeSignal     `json:"signal"`
	Sender    string          `json:"sender,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
	Meta      gjson.Result    `json:"meta,omitempty"`
}

func (ExecutionReport) pubsubEvent() {}

// MarshalJSON implements custom JSON marshaling for ExecutionReport
func (r ExecutionReport) MarshalJSON() ([]byte, error) {
	result := executionReportJSON

	var err error
	result, err = sjson.SetBytes(result, "status", r.Status)
	if err != nil {
		return nil, err
	}

	sb, err := json.Marshal(r.Signal)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signal: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "signal", sb)
	if err != nil {
		return nil, err
	}

	return marshalEnvelope(result, r.Sender, r.Timestamp, r.Meta)
}

// UnmarshalJSON implements custom JSON unmarshaling for ExecutionReport
func (r *ExecutionReport) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "execution_report" {
		return fmt.Errorf("missing or invalid type, expected 'execution_report'")
	}

	status := gjson.GetBytes(data, "status")
	if !status.Exists() {
		return fmt.Errorf("missing required field 'status'")
	}
	r.Status = status.String()

	signal := gjson.GetBytes(data, "signal")
	if !signal.Exists() {
		return fmt.Errorf("missing required field 'signal'")
	}
	if err := r.Signal.UnmarshalJSON([]byte(signal.Raw)); err != nil {
		return fmt.Errorf("invalid signal: %w", err)
	}

	unmarshalEnvelope(data, &r.Sender, &r.Timestamp, &r.Meta)
	return nil
}

func marshalEnvelope(result []byte, sender string, ts strfmt.DateTime, meta gjson.Result) ([]byte, error) {
	var err error
	if sender != "" {
		result, err = sjson.SetBytes(result, "sender", sender)
		if err != nil {
			return nil, err
		}
	}

	if !ts.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", ts.String())
		if err != nil {
			return nil, err
		}
	}

	if meta.Exists() {
		result, err = sjson.SetRawBytes(result, "meta", []byte(meta.Raw))
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

func unmarshalEnvelope(data []byte, sender *string, ts *strfmt.DateTime, meta *gjson.Result) {
	if s := gjson.GetBytes(data, "sender"); s.Exists() {
		*sender = s.String()
	}
	if t := gjson.GetBytes(data, "timestamp"); t.Exists() {
		// a bad timestamp leaves the zero value in place
		_ = ts.UnmarshalText([]byte(t.String()))
	}
	if m := gjson.GetBytes(data, "meta"); m.Exists() {
		*meta = m
	}
}

// ToJSON marshals any pipeline event.
func ToJSON(event Event) ([]byte, error) {
	return json.Marshal(event)
}

// FromJSON decodes an event by dispatching on its type tag.
func FromJSON(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}

	switch tag := gjson.GetBytes(data, "type").String(); tag {
	case "market_state":
		var e MarketState
		if err := e.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return e, nil
	case "trade_signal":
		var e TradeSignal
		if err := e.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return e, nil
	case "tax_update":
		var e TaxUpdate
		if err := e.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return e, nil
	case "execution_report":
		var e ExecutionReport
		if err := e.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type: %q", tag)
	}
}
