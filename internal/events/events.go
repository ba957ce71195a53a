// Package events publishes image lifecycle notifications to EventBridge.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

const (
	// Source is the EventBridge source of every event.
	Source = "appraisily.image-generation"
	// DetailTypeGenerated marks a freshly generated and uploaded image.
	DetailTypeGenerated = "ProfileImageGenerated"
)

// Generated is the detail of a DetailTypeGenerated event.
type Generated struct {
	EntityID     string    `json:"entityId"`
	EntityType   string    `json:"entityType"`
	ImageURL     string    `json:"imageUrl"`
	Fingerprint  string    `json:"fingerprint"`
	Provider     string    `json:"provider"`
	PromptSource string    `json:"promptSource"`
	UploadTier   string    `json:"uploadTier"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// PutEventsAPI is the subset of *eventbridge.Client the publisher uses.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher sends events to one bus.
type Publisher struct {
	client  PutEventsAPI
	busName string
}

// NewPublisher returns a publisher for busName. An empty name targets the
// account's default bus.
func NewPublisher(client PutEventsAPI, busName string) *Publisher {
	return &Publisher{client: client, busName: busName}
}

// PublishGenerated emits a DetailTypeGenerated event.
func (p *Publisher) PublishGenerated(ctx context.Context, evt Generated) error {
	detail, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", DetailTypeGenerated, err)
	}

	entry := ebtypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(DetailTypeGenerated),
		Detail:     aws.String(string(detail)),
		Time:       aws.Time(evt.GeneratedAt),
	}
	if p.busName != "" {
		entry.EventBusName = aws.String(p.busName)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("PutEvents reported %d failed entries", result.FailedEntryCount)
	}

	log.Debug().
		Str("entityId", evt.EntityID).
		Str("detailType", DetailTypeGenerated).
		Msg("Event published to EventBridge")
	return nil
}
