package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"morpho-rate-alerts/internal/version"
)

const marketByUniqueKeyQuery = `query($uniqueKey: String!, $chainId: Int!) {
  marketByUniqueKey(uniqueKey: $uniqueKey, chainId: $chainId) {
    uniqueKey
    loanAsset { symbol address }
    collateralAsset { symbol address }
    state { borrowApy utilization }
  }
}`

// MorphoOptions parameterise the Morpho GraphQL fetcher.
type MorphoOptions struct {
	Endpoint  string
	UniqueKey string
	ChainID   int
	Timeout   time.Duration
	UserAgent string
}

// Morpho queries the Morpho Blue GraphQL API for a single market.
type Morpho struct {
	opts   MorphoOptions
	logger zerolog.Logger
	client *resty.Client
}

// NewMorpho constructs a market fetcher.
func NewMorpho(opts MorphoOptions, logger zerolog.Logger) *Morpho {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "https://api.morpho.org/graphql"
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = version.UserAgent()
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent)

	return &Morpho{
		opts:   opts,
		logger: logger.With().Str("component", "market_fetcher").Logger(),
		client: client,
	}
}

// FetchMarket issues one marketByUniqueKey query.
func (m *Morpho) FetchMarket(ctx context.Context) (MarketSnapshot, error) {
	if m.opts.UniqueKey == "" {
		return MarketSnapshot{}, fmt.Errorf("%w: market unique key not configured", ErrDataUnavailable)
	}

	payload := graphQLRequest{
		Query: marketByUniqueKeyQuery,
		Variables: map[string]any{
			"uniqueKey": m.opts.UniqueKey,
			"chainId":   m.opts.ChainID,
		},
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(m.opts.Endpoint)
	if err != nil {
		return MarketSnapshot{}, fmt.Errorf("%w: graphql request: %v", ErrDataUnavailable, err)
	}

	body := resp.Body()
	if resp.IsError() {
		return MarketSnapshot{}, parseHTTPError(resp.StatusCode(), body)
	}

	var res marketResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return MarketSnapshot{}, fmt.Errorf("%w: decode graphql response: %v", ErrDataUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return MarketSnapshot{}, fmt.Errorf("%w: graphql error: %s", ErrDataUnavailable, res.Errors.String())
	}

	snapshot, err := m.toSnapshot(res.Data.MarketByUniqueKey)
	if err != nil {
		return MarketSnapshot{}, err
	}

	m.logger.Debug().
		Str("borrow_apy", snapshot.BorrowAPY.String()).
		Str("utilization", snapshot.Utilization.String()).
		Msg("market snapshot fetched")
	return snapshot, nil
}

func (m *Morpho) toSnapshot(market *marketPayload) (MarketSnapshot, error) {
	if market == nil {
		return MarketSnapshot{}, fmt.Errorf("%w: market %s not found on chain %d", ErrDataUnavailable, m.opts.UniqueKey, m.opts.ChainID)
	}
	if market.State == nil || !market.State.BorrowApy.Valid || !market.State.Utilization.Valid {
		return MarketSnapshot{}, fmt.Errorf("%w: market %s has no state", ErrDataUnavailable, m.opts.UniqueKey)
	}

	apy := market.State.BorrowApy.Decimal
	util := market.State.Utilization.Decimal
	if apy.IsNegative() || util.IsNegative() {
		return MarketSnapshot{}, fmt.Errorf("%w: negative rate in market state (apy=%s utilization=%s)", ErrDataUnavailable, apy, util)
	}

	snapshot := MarketSnapshot{
		UniqueKey:   m.opts.UniqueKey,
		ChainID:     m.opts.ChainID,
		BorrowAPY:   apy,
		Utilization: util,
	}
	if market.LoanAsset != nil {
		snapshot.Loan = Asset{Symbol: market.LoanAsset.Symbol, Address: market.LoanAsset.Address}
	}
	if market.CollateralAsset != nil {
		snapshot.Collateral = Asset{Symbol: market.CollateralAsset.Symbol, Address: market.CollateralAsset.Address}
	}
	return snapshot, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type marketResponse struct {
	Data struct {
		MarketByUniqueKey *marketPayload `json:"marketByUniqueKey"`
	} `json:"data"`
	Errors graphQLErrors `json:"errors"`
}

type marketPayload struct {
	UniqueKey       string        `json:"uniqueKey"`
	LoanAsset       *assetPayload `json:"loanAsset"`
	CollateralAsset *assetPayload `json:"collateralAsset"`
	State           *struct {
		BorrowApy   decimal.NullDecimal `json:"borrowApy"`
		Utilization decimal.NullDecimal `json:"utilization"`
	} `json:"state"`
}

type assetPayload struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLErrors []graphQLError

func (e graphQLErrors) String() string {
	msgs := make([]string, 0, len(e))
	for _, item := range e {
		msgs = append(msgs, item.Message)
	}
	return strings.Join(msgs, "; ")
}

func parseHTTPError(status int, payload []byte) error {
	var res marketResponse
	if err := json.Unmarshal(payload, &res); err == nil && len(res.Errors) > 0 {
		return fmt.Errorf("%w: morpho api error (%d): %s", ErrDataUnavailable, status, res.Errors.String())
	}
	if trimmed := strings.TrimSpace(string(payload)); trimmed != "" {
		return fmt.Errorf("%w: morpho api error (%d): %s", ErrDataUnavailable, status, trimmed)
	}
	return fmt.Errorf("%w: morpho api error (%d)", ErrDataUnavailable, status)
}

var _ MarketFetcher = (*Morpho)(nil)
