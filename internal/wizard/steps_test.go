package wizard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roomiegr/roomie/internal/model"
)

func TestVisible(t *testing.T) {
	t.Parallel()
	room := Visible(model.PropertyRoom)
	require.Len(t, room, 12)
	require.Contains(t, room, StepRoomDetails)

	for _, pt := range []string{model.PropertyApartment, ""} {
		steps := Visible(pt)
		require.Len(t, steps, 11)
		require.NotContains(t, steps, StepRoomDetails)
	}
}

func TestNextPrevVisible(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		pt   string
		from Step
		next Step
		prev Step
	}{
		{"apartment skips forward", model.PropertyApartment, StepPropertyDetails, StepAmenities, StepTitle},
		{"apartment skips backward", model.PropertyApartment, StepAmenities, StepHouseRules, StepPropertyDetails},
		{"room forward", model.PropertyRoom, StepPropertyDetails, StepRoomDetails, StepTitle},
		{"room backward", model.PropertyRoom, StepAmenities, StepHouseRules, StepRoomDetails},
		{"first step", model.PropertyRoom, StepPropertyType, StepLocation, StepPropertyType},
		{"last step", model.PropertyRoom, StepReview, StepReview, StepPhotos},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.next, nextVisible(tc.from, tc.pt))
			require.Equal(t, tc.prev, prevVisible(tc.from, tc.pt))
		})
	}
}

func TestFieldStep(t *testing.T) {
	t.Parallel()
	require.Equal(t, Step(8), FieldStep("price_month"))
	require.Equal(t, StepLocation, FieldStep("city"))
	require.Equal(t, StepPhotos, FieldStep("photos"))
	require.Equal(t, StepRoomDetails, FieldStep("room_furnished"))
	require.Equal(t, StepReview, FieldStep("no_such_field"))
}

func TestStepString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "pricing", StepPricing.String())
	require.Equal(t, "unknown", Step(0).String())
	require.False(t, Step(0).Valid())
	require.True(t, StepReview.Valid())
}
