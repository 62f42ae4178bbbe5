package services

import (
	"errors"
	"testing"

	"club-engagement-system/models"
)

func TestAmountMultipliers(t *testing.T) {
	svc := NewPointsService(nil, DefaultPointsConfig())

	cases := []struct {
		name     string
		action   models.ActionType
		metadata map[string]string
		want     int
	}{
		{"attendance base", models.ActionAttendance, nil, 10},
		{"feedback base", models.ActionFeedback, nil, 5},
		{"photo no type", models.ActionPhotoUpload, nil, 5},
		{"photo empty metadata", models.ActionPhotoUpload, map[string]string{}, 5},
		{"photo alumni x2", models.ActionPhotoUpload, map[string]string{"photoType": "alumni"}, 10},
		{"photo professional x3", models.ActionPhotoUpload, map[string]string{"photoType": "professional"}, 15},
		{"photo member_of_month x4", models.ActionPhotoUpload, map[string]string{"photoType": "member_of_month"}, 20},
		{"photo unrecognized type x1", models.ActionPhotoUpload, map[string]string{"photoType": "selfie"}, 5},
	}

	for _, tc := range cases {
		got, err := svc.Amount(tc.action, tc.metadata)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestAmountUnknownAction(t *testing.T) {
	svc := NewPointsService(nil, DefaultPointsConfig())
	if _, err := svc.Amount("high_five", nil); !errors.Is(err, ErrInvalidActionType) {
		t.Fatalf("expected ErrInvalidActionType, got %v", err)
	}
}

func TestReasonDerivation(t *testing.T) {
	cases := []struct {
		action   models.ActionType
		metadata map[string]string
		want     string
	}{
		{models.ActionAttendance, nil, "attendance"},
		{models.ActionFeedback, nil, "feedback"},
		{models.ActionPhotoUpload, nil, "photo_upload"},
		{models.ActionPhotoUpload, map[string]string{"photoType": "alumni"}, "photo_upload:alumni"},
		{models.ActionPhotoUpload, map[string]string{"photoType": "member_of_month"}, "photo_upload:member_of_month"},
	}
	for _, tc := range cases {
		if got := Reason(tc.action, tc.metadata); got != tc.want {
			t.Errorf("Reason(%s, %v) = %q, want %q", tc.action, tc.metadata, got, tc.want)
		}
	}
}
