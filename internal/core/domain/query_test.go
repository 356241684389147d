package domain

import "testing"

func TestChunkFilter_Allows(t *testing.T) {
	public := &ChunkEntry{BlobID: "b1", Visibility: VisibilityPublic, OwnerIdentity: "0xalice"}
	private := &ChunkEntry{BlobID: "b2", Visibility: VisibilityPrivate, OwnerIdentity: "0xalice"}

	tests := []struct {
		name   string
		filter ChunkFilter
		chunk  *ChunkEntry
		want   bool
	}{
		{"public chunk, stranger", ChunkFilter{RequesterIdentity: "0xbob"}, public, true},
		{"private chunk, owner", ChunkFilter{RequesterIdentity: "0xalice"}, private, true},
		{"private chunk, stranger", ChunkFilter{RequesterIdentity: "0xbob"}, private, false},
		{"blob filter match", ChunkFilter{RequesterIdentity: "0xbob", BlobIDs: []string{"b1"}}, public, true},
		{"blob filter miss", ChunkFilter{RequesterIdentity: "0xbob", BlobIDs: []string{"b9"}}, public, false},
		{"blob filter does not bypass access", ChunkFilter{RequesterIdentity: "0xbob", BlobIDs: []string{"b2"}}, private, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Allows(tt.chunk); got != tt.want {
				t.Errorf("Allows() = %v, want %v", got, tt.want)
			}
		})
	}
}
