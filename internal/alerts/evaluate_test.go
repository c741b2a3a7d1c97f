package alerts

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

var evalTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newAlert(t models.AlertType, threshold string) models.PriceAlert {
	return models.PriceAlert{
		ID:        1,
		AssetID:   7,
		Type:      t,
		Threshold: decimal.RequireFromString(threshold),
		Currency:  "EUR",
		Active:    true,
	}
}

func quote(price string) models.Quote {
	return models.Quote{AssetID: 7, Price: decimal.RequireFromString(price)}
}

func TestEvaluateAboveScenario(t *testing.T) {
	alert := newAlert(models.AlertAbove, "100.0")

	got, fired, err := Evaluate(alert, quote("95.0"), evalTime)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, alert, got)

	got, fired, err = Evaluate(got, quote("101.0"), evalTime)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.True(t, got.Triggered)
	require.NotNil(t, got.TriggeredAt)
	assert.Equal(t, evalTime, *got.TriggeredAt)
	assert.False(t, got.NotificationSent)
	assert.True(t, got.Active)
}

func TestEvaluateInactiveBelowScenario(t *testing.T) {
	alert := newAlert(models.AlertBelow, "50.0")
	alert.Active = false

	got, fired, err := Evaluate(alert, quote("10.0"), evalTime)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, alert, got)
}

func TestEvaluateBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		alertType models.AlertType
		threshold string
		price     string
		prev      string
		want      bool
	}{
		{"above equal", models.AlertAbove, "100", "100", "", true},
		{"above under", models.AlertAbove, "100", "99.99", "", false},
		{"below equal", models.AlertBelow, "50", "50", "", true},
		{"below over", models.AlertBelow, "50", "50.01", "", false},
		{"change up", models.AlertChangePercent, "5", "105", "100", true},
		{"change down", models.AlertChangePercent, "5", "95", "100", true},
		{"change small", models.AlertChangePercent, "5", "104", "100", false},
		{"change without previous close", models.AlertChangePercent, "5", "500", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := quote(tt.price)
			if tt.prev != "" {
				q.PreviousClose = decimal.RequireFromString(tt.prev)
			}
			_, fired, err := Evaluate(newAlert(tt.alertType, tt.threshold), q, evalTime)
			require.NoError(t, err)
			assert.Equal(t, tt.want, fired)
		})
	}
}

func TestEvaluateAlreadyTriggeredIsNoOp(t *testing.T) {
	alert := newAlert(models.AlertAbove, "100")
	first, fired, err := Evaluate(alert, quote("150"), evalTime)
	require.NoError(t, err)
	require.True(t, fired)

	second, fired, err := Evaluate(first, quote("150"), evalTime.Add(time.Hour))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyTriggered)
	assert.False(t, fired)
	assert.Equal(t, first, second)
}

func TestDescribe(t *testing.T) {
	alert := newAlert(models.AlertChangePercent, "5")
	q := models.Quote{AssetID: 7, Price: decimal.NewFromInt(90), PreviousClose: decimal.NewFromInt(100)}

	assert.Equal(t, "ACME moved -10.00% to 90 EUR (threshold 5%)", Describe(alert, "ACME", q))
}

// Feature: portfolio-tracker, Property 4: Evaluation idempotency
//
// Property: Evaluating an alert a second time with the same quote never
// changes the state produced by the first evaluation.
func TestProperty_EvaluateIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	types := []models.AlertType{models.AlertAbove, models.AlertBelow, models.AlertChangePercent}

	properties.Property("second evaluation leaves state unchanged", prop.ForAll(
		func(typeIdx int, threshold, price, prev float64, active bool) bool {
			alert := models.PriceAlert{
				ID:        1,
				AssetID:   7,
				Type:      types[typeIdx],
				Threshold: decimal.NewFromFloat(threshold),
				Active:    active,
			}
			q := models.Quote{AssetID: 7, Price: decimal.NewFromFloat(price), PreviousClose: decimal.NewFromFloat(prev)}

			first, _, err := Evaluate(alert, q, evalTime)
			if err != nil {
				return false
			}
			second, fired, _ := Evaluate(first, q, evalTime.Add(time.Minute))
			if fired {
				return false
			}
			if first.CheckInvariants() != nil || second.CheckInvariants() != nil {
				return false
			}
			return first.Triggered == second.Triggered &&
				first.Active == second.Active &&
				first.NotificationSent == second.NotificationSent &&
				(first.TriggeredAt == nil) == (second.TriggeredAt == nil) &&
				(first.TriggeredAt == nil || first.TriggeredAt.Equal(*second.TriggeredAt))
		},
		gen.IntRange(0, len(types)-1),
		gen.Float64Range(0.01, 1000),
		gen.Float64Range(0.01, 1000),
		gen.Float64Range(0, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
