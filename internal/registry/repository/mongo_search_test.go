package repository

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

func TestVectorSearchStage_typeFilterInsideStage(t *testing.T) {
	stage := vectorSearchStage("idx", []float32{0.1, 0.2}, []model.EntityType{model.EntityA2AAgent}, 10, 10)

	if stage["index"] != "idx" || stage["limit"] != 10 || stage["numCandidates"] != 100 {
		t.Errorf("stage = %v", stage)
	}
	// The type constraint rides in the stage's own filter so the limit
	// applies to already-filtered candidates.
	filter, ok := stage["filter"].(bson.M)
	if !ok {
		t.Fatalf("filter = %T, want bson.M", stage["filter"])
	}
	want := bson.M{"entity_type": bson.M{"$in": []model.EntityType{model.EntityA2AAgent}}}
	if !reflect.DeepEqual(filter, want) {
		t.Errorf("filter = %v, want %v", filter, want)
	}
}

func TestVectorSearchStage_noFilterWithoutTypes(t *testing.T) {
	stage := vectorSearchStage("idx", []float32{0.1}, nil, 5, 10)
	if _, ok := stage["filter"]; ok {
		t.Errorf("unfiltered stage carries a filter: %v", stage)
	}
}
