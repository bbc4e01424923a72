package pubsub

import (
	"testing"

	"github.com/angelmondragon/shipwallet-backend/pkg/config"
)

func TestTopicNames(t *testing.T) {
	names := topicNames(config.PubSubConfig{SettlementTopic: " settlement ", AlertsTopic: "alerts"})
	if len(names) != 2 || names[0] != "settlement" || names[1] != "alerts" {
		t.Fatalf("unexpected names %v", names)
	}
	if got := topicNames(config.PubSubConfig{AlertsTopic: "alerts"}); len(got) != 1 {
		t.Fatalf("expected one name, got %v", got)
	}
}

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "shipwallet-dev"}
	cases := map[string]string{
		"settlement":                   "projects/shipwallet-dev/topics/settlement",
		"projects/other/topics/alerts": "projects/other/topics/alerts",
		"  ":                           "",
	}
	for in, want := range cases {
		if got := c.topicResourceName(in); got != want {
			t.Fatalf("topicResourceName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := (&Client{}).topicResourceName("settlement"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}
