package core

import "github.com/duomem/duomem-go/pkg/storage"

// Conversions between core and storage types. The storage package keeps its
// own mirrors of these types to avoid a circular dependency.

func toStorageFact(f *Fact) *storage.Fact {
	return &storage.Fact{
		ID:           f.ID,
		OwnerID:      f.OwnerID,
		Content:      f.Content,
		Embedding:    f.Embedding,
		Metadata:     f.Metadata,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
		Version:      f.Version,
		GraphPending: f.GraphPending,
		Score:        f.Score,
	}
}

func fromStorageFact(f *storage.Fact) *Fact {
	return &Fact{
		ID:           f.ID,
		OwnerID:      f.OwnerID,
		Content:      f.Content,
		Embedding:    f.Embedding,
		Metadata:     f.Metadata,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
		Version:      f.Version,
		GraphPending: f.GraphPending,
		Score:        f.Score,
	}
}

func toStorageEntity(e *Entity) *storage.Entity {
	return &storage.Entity{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Name:      e.Name,
		Type:      string(e.Type),
		CreatedAt: e.CreatedAt,
	}
}

func fromStorageEntity(e *storage.Entity) *Entity {
	return &Entity{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Name:      e.Name,
		Type:      EntityType(e.Type),
		CreatedAt: e.CreatedAt,
	}
}

func toStorageRelation(r *Relation) *storage.Relation {
	return &storage.Relation{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		SourceID:   r.SourceID,
		SourceName: r.SourceName,
		Label:      r.Label,
		TargetID:   r.TargetID,
		TargetName: r.TargetName,
		FactID:     r.FactID,
		Confidence: r.Confidence,
		CreatedAt:  r.CreatedAt,
	}
}

func fromStorageRelation(r *storage.Relation) *Relation {
	return &Relation{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		SourceID:   r.SourceID,
		SourceName: r.SourceName,
		Label:      r.Label,
		TargetID:   r.TargetID,
		TargetName: r.TargetName,
		FactID:     r.FactID,
		Confidence: r.Confidence,
		CreatedAt:  r.CreatedAt,
	}
}

func fromStorageNeighbor(n *storage.Neighbor) *GraphNeighbor {
	return &GraphNeighbor{
		Entity:   fromStorageEntity(n.Entity),
		Relation: fromStorageRelation(n.Relation),
		Distance: n.Distance,
	}
}
