package index

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"cosmossdk.io/math"
	"golang.org/x/time/rate"

	"github.com/atlas-money/liquidator/types"
)

const DefaultPageLimit = 1000

// Client queries the position indexer, a read-only, eventually-consistent
// feed of position snapshots. It may lag true on-chain state by a bounded
// indexing delay; callers must not assume the lag is zero.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	PageLimit  int
}

func NewClient(baseURL string, requestsPerSecond float64) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		PageLimit:  DefaultPageLimit,
	}, nil
}

type positionJSON struct {
	ID              string         `json:"id"`
	PoolID          string         `json:"pool_id"`
	CollateralAsset string         `json:"collateral_asset"`
	DebtAsset       string         `json:"debt_asset"`
	Collateral      math.LegacyDec `json:"collateral"`
	Borrowed        math.LegacyDec `json:"borrowed"`
}

type positionsResponse struct {
	Positions []positionJSON `json:"positions"`
}

type poolParamsResponse struct {
	PoolID             string         `json:"pool_id"`
	LowCollateralRatio math.LegacyDec `json:"low_collateral_ratio"`
	LiquidationPenalty math.LegacyDec `json:"liquidation_penalty"`
	SafetyMargin       math.LegacyDec `json:"safety_margin"`
}

// Positions returns the full snapshot set for a pool, paging through the
// indexer until a short page signals the end. Inert positions are filtered
// out here so downstream components never see them.
func (c *Client) Positions(ctx context.Context, poolID string) ([]types.Position, error) {
	var positions []types.Position
	page := 1

	for {
		path := fmt.Sprintf("pools/%s/positions?page=%d&limit=%d", poolID, page, c.PageLimit)

		var resp positionsResponse
		if err := c.fetchEndpoint(ctx, path, &resp); err != nil {
			return nil, err
		}

		for _, p := range resp.Positions {
			position := types.Position{
				ID:              p.ID,
				PoolID:          p.PoolID,
				CollateralAsset: p.CollateralAsset,
				DebtAsset:       p.DebtAsset,
				Collateral:      p.Collateral,
				Borrowed:        p.Borrowed,
			}
			if position.Inert() {
				continue
			}
			positions = append(positions, position)
		}

		if len(resp.Positions) < c.PageLimit {
			return positions, nil
		}
		page++
	}
}

// PoolParams fetches the current liquidation parameters for a pool.
func (c *Client) PoolParams(ctx context.Context, poolID string) (types.PoolParams, error) {
	var resp poolParamsResponse
	if err := c.fetchEndpoint(ctx, fmt.Sprintf("pools/%s/params", poolID), &resp); err != nil {
		return types.PoolParams{}, err
	}

	return types.PoolParams{
		PoolID:             resp.PoolID,
		LowCollateralRatio: resp.LowCollateralRatio,
		LiquidationPenalty: resp.LiquidationPenalty,
		SafetyMargin:       resp.SafetyMargin,
	}, nil
}

func (c *Client) fetchEndpoint(ctx context.Context, path string, fetchTypePtr interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	queryPath, err := url.Parse(path)
	if err != nil {
		return err
	}
	fullURL := c.baseURL.ResolveReference(queryPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bz, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed: %s", string(bz))
	}

	return json.Unmarshal(bz, fetchTypePtr)
}
