package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func Test_draftPatchFromArgs_OnlyGivenFlags(t *testing.T) {
	p, err := draftPatchFromArgs([]string{
		"-type", "room", "-city", "Athens", "-price", "0", "-bills=false",
		"-amenities", "wifi, balcony,,", "-from", "2026-09-01",
	})
	if err != nil {
		t.Fatalf("draftPatchFromArgs: %v", err)
	}
	if p.PropertyType == nil || *p.PropertyType != "room" {
		t.Fatalf("type not set: %+v", p.PropertyType)
	}
	if p.City == nil || *p.City != "Athens" {
		t.Fatalf("city not set")
	}
	// explicit zero values are still "provided"
	if p.PriceMonth == nil || *p.PriceMonth != 0 {
		t.Fatalf("price=0 must be carried")
	}
	if p.BillsIncluded == nil || *p.BillsIncluded {
		t.Fatalf("bills=false must be carried")
	}
	if p.Amenities == nil || !reflect.DeepEqual(*p.Amenities, []string{"wifi", "balcony"}) {
		t.Fatalf("amenities: %v", p.Amenities)
	}
	want := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if p.AvailableFrom == nil || !p.AvailableFrom.Equal(want) {
		t.Fatalf("from: %v", p.AvailableFrom)
	}
	if p.Title != nil || p.Neighborhood != nil || p.AvailableUntil != nil || p.Photos != nil {
		t.Fatalf("flags not given must stay nil: %+v", p)
	}

	raw, _ := json.Marshal(p)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	if _, ok := m["title"]; ok {
		t.Fatalf("unset field serialized: %s", raw)
	}
}

func Test_draftPatchFromArgs_Errors(t *testing.T) {
	cases := map[string][]string{
		"nothing":  {},
		"bad date": {"-until", "01/09/2026"},
		"bad int":  {"-price", "cheap"},
		"unknown":  {"-colour", "red"},
	}
	for name, args := range cases {
		if _, err := draftPatchFromArgs(args); err == nil {
			t.Fatalf("%s: want error", name)
		}
	}
}

func Test_profilePatchFromArgs(t *testing.T) {
	p, err := profilePatchFromArgs([]string{"-name", "Eleni", "-dob", "1998-04-02", "-languages", "el,en", "-pets"})
	if err != nil {
		t.Fatalf("profilePatchFromArgs: %v", err)
	}
	if p.DisplayName == nil || *p.DisplayName != "Eleni" || p.DateOfBirth == nil || p.HasPets == nil || !*p.HasPets {
		t.Fatalf("patch: %+v", p)
	}
	if p.Languages == nil || len(*p.Languages) != 2 || p.Smoker != nil || p.Bio != nil {
		t.Fatalf("patch: %+v", p)
	}
	if _, err := profilePatchFromArgs([]string{"-dob", "yesterday"}); err == nil {
		t.Fatalf("want error for bad dob")
	}
	if _, err := profilePatchFromArgs(nil); err == nil {
		t.Fatalf("want error for empty patch")
	}
}

func Test_searchQuery(t *testing.T) {
	q, err := searchQuery([]string{"-city", "Thessaloniki", "-type", "apartment", "-max", "600", "-limit", "10"})
	if err != nil {
		t.Fatalf("searchQuery: %v", err)
	}
	if q.Get("city") != "Thessaloniki" || q.Get("property_type") != "apartment" || q.Get("max_price") != "600" || q.Get("limit") != "10" {
		t.Fatalf("query: %v", q)
	}
	if q.Has("min_price") || q.Has("offset") || q.Has("neighborhood") {
		t.Fatalf("zero flags must be omitted: %v", q)
	}
	if _, err := searchQuery([]string{"-from", "tomorrow"}); err == nil {
		t.Fatalf("want error for bad date")
	}
}

func Test_decisionCmd(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = nil
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c, _ := newClient(srv.URL, "", false)
	ctx := context.Background()

	id := "6f1c3b0e-8a53-4d8b-9c1e-2f0b7a9d4e11"
	if err := cmdModerate(ctx, c, []string{"-id", id, "-action", "suspend", "-reason", "fake photos"}); err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if gotPath != "/admin/listings/"+id+"/suspend" || gotBody["reason"] != "fake photos" {
		t.Fatalf("moderate sent path=%s body=%v", gotPath, gotBody)
	}

	if err := cmdDecide(ctx, c, []string{"-id", id, "-action", "approve"}); err != nil {
		t.Fatalf("decide: %v", err)
	}
	if gotPath != "/admin/verifications/"+id+"/approve" || gotBody != nil {
		t.Fatalf("decide sent path=%s body=%v", gotPath, gotBody)
	}

	if err := cmdDecide(ctx, c, []string{"-id", id, "-action", "suspend"}); err == nil {
		t.Fatalf("want error for action outside the verification set")
	}
	if err := cmdModerate(ctx, c, []string{"-id", "42", "-action", "approve"}); err == nil {
		t.Fatalf("want error for bad uuid")
	}
}

func Test_onWizard_UsesSavedID(t *testing.T) {
	_ = withTmpConfig(t)
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"wizard_id":"w-1","step":2}`))
	}))
	defer srv.Close()
	c, _ := newClient(srv.URL, "", false)

	if err := commands["next"](context.Background(), c, nil); err == nil {
		t.Fatalf("want error without a saved wizard")
	}
	if err := cmdWizardStart(context.Background(), c, nil); err != nil {
		t.Fatalf("wizard-start: %v", err)
	}
	if gotPath != "/wizard" {
		t.Fatalf("wizard-start path=%s", gotPath)
	}
	if err := commands["next"](context.Background(), c, nil); err != nil {
		t.Fatalf("next: %v", err)
	}
	if gotPath != "/wizard/w-1/next" {
		t.Fatalf("next path=%s", gotPath)
	}
	if err := cmdGoto(context.Background(), c, []string{"-step", "4"}); err != nil || gotPath != "/wizard/w-1/goto/4" {
		t.Fatalf("goto: path=%s err=%v", gotPath, err)
	}
}

func Test_contentTypeOf(t *testing.T) {
	if got := contentTypeOf("id.PNG", nil); got != "image/png" {
		t.Fatalf("png: %s", got)
	}
	if got := contentTypeOf("blob", []byte("%PDF-1.7")); got != "application/pdf" {
		t.Fatalf("sniff: %s", got)
	}
}

func Test_cmdMessages_Cursor(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		_, _ = w.Write([]byte(`{"messages":[],"has_more":false}`))
	}))
	defer srv.Close()
	c, _ := newClient(srv.URL, "", false)
	ctx := context.Background()

	th := "6f1c3b0e-8a53-4d8b-9c1e-2f0b7a9d4e11"
	cur := "0b7a9d4e-8a53-4d8b-9c1e-6f1c3b0e2f11"
	if err := cmdMessages(ctx, c, []string{"-thread", th, "-limit", "20", "-before", cur}); err != nil {
		t.Fatalf("messages: %v", err)
	}
	if gotPath != "/threads/"+th+"/messages" || gotQuery != "before="+cur+"&limit=20" {
		t.Fatalf("messages sent path=%s query=%s", gotPath, gotQuery)
	}
	if err := cmdMessages(ctx, c, []string{"-thread", th, "-after", "latest"}); err == nil {
		t.Fatalf("want error for bad cursor")
	}
}
