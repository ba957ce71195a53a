package cache

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type fakeDynamo struct {
	items   map[string]map[string]types.AttributeValue
	lastGet *dynamodb.GetItemInput
	putErr  error
}

func itemKey(k map[string]types.AttributeValue) string {
	return k["PK"].(*types.AttributeValueMemberS).Value + "|" + k["SK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGet = in
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

var appraiserKey = Key{Type: "appraiser", ID: "a1"}

func TestDynamoStore_ReadAfterWrite(t *testing.T) {
	fd := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	s := NewDynamoStore(fd, "image-cache", 24*time.Hour)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return created }
	ctx := context.Background()

	if e, err := s.Lookup(ctx, appraiserKey); err != nil || e != nil {
		t.Fatalf("expected (nil, nil) before put, got (%v, %v)", e, err)
	}
	if _, err := s.Put(ctx, appraiserKey, PutInput{Fingerprint: "fp", ArtifactURL: "https://cdn/a1.png", SizeBytes: 42}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	raw := fd.items["ENTITY#appraiser#a1|IMAGE"]
	exp, ok := raw["expiresAt"].(*types.AttributeValueMemberN)
	if !ok {
		t.Fatal("expected expiresAt TTL attribute")
	}
	if want := strconv.FormatInt(created.Add(24*time.Hour).Unix(), 10); exp.Value != want {
		t.Errorf("expected expiresAt %s, got %s", want, exp.Value)
	}

	e, err := s.Lookup(ctx, appraiserKey)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e.Fingerprint != "fp" || e.ArtifactURL != "https://cdn/a1.png" || e.SizeBytes != 42 || !e.CreatedAt.Equal(created) {
		t.Errorf("unexpected entry %+v", e)
	}
	if fd.lastGet.ConsistentRead == nil || !*fd.lastGet.ConsistentRead {
		t.Error("expected consistent read")
	}
}

func TestDynamoStore_PutError(t *testing.T) {
	fd := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}, putErr: errors.New("throttled")}
	s := NewDynamoStore(fd, "t", 0)
	if _, err := s.Put(context.Background(), appraiserKey, PutInput{}); err == nil {
		t.Error("expected put error to be returned")
	}
}

func TestDynamoStore_SameIDDifferentTypes(t *testing.T) {
	fd := &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
	s := NewDynamoStore(fd, "image-cache", 0)
	ctx := context.Background()

	if _, err := s.Put(ctx, Key{Type: "appraiser", ID: "7"}, PutInput{Fingerprint: "fa", ArtifactURL: "https://cdn/appraiser-7"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put(ctx, Key{Type: "location", ID: "7"}, PutInput{Fingerprint: "fl", ArtifactURL: "https://cdn/location-7"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(fd.items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(fd.items))
	}
	e, err := s.Lookup(ctx, Key{Type: "appraiser", ID: "7"})
	if err != nil || e == nil {
		t.Fatalf("Lookup: %v %v", e, err)
	}
	if e.Fingerprint != "fa" || e.EntityType != "appraiser" || e.EntityID != "7" {
		t.Errorf("expected appraiser entry, got %+v", e)
	}
}
