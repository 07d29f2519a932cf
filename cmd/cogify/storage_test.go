// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"testing"
)

type fakeStorage struct {
	objects map[string]ObjectInfo
	puts    []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]ObjectInfo)}
}

func (s *fakeStorage) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return true, nil
}

func (s *fakeStorage) Stat(ctx context.Context, bucket, path string) (ObjectInfo, error) {
	key := bucket + "/" + path
	info, ok := s.objects[key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("no such object: %s", key)
	}
	return info, nil
}

func (s *fakeStorage) PutFile(ctx context.Context, bucket, remotepath, localpath, contentType string) error {
	key := bucket + "/" + remotepath
	s.objects[key] = ObjectInfo{Key: remotepath, ContentType: contentType}
	s.puts = append(s.puts, key)
	return nil
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	s := newFakeStorage()

	remotepath, err := upload(ctx, s, "cogify", "/tmp/scene-20260824.tif")
	if err != nil {
		t.Fatal(err)
	}
	if remotepath != "public/scene-20260824.tif" {
		t.Errorf("got remote path %q, want public/scene-20260824.tif", remotepath)
	}
	if len(s.puts) != 1 {
		t.Fatalf("got %d uploads, want 1", len(s.puts))
	}
	if got := s.objects["cogify/public/scene-20260824.tif"].ContentType; got != "image/tiff" {
		t.Errorf("got content type %q, want image/tiff", got)
	}
}

func TestUploadSkipsExisting(t *testing.T) {
	ctx := context.Background()
	s := newFakeStorage()
	s.objects["cogify/public/scene.tif"] = ObjectInfo{Key: "public/scene.tif"}

	remotepath, err := upload(ctx, s, "cogify", "scene.tif")
	if err != nil {
		t.Fatal(err)
	}
	if remotepath != "" {
		t.Errorf("got remote path %q, want skip", remotepath)
	}
	if len(s.puts) != 0 {
		t.Errorf("got %d uploads, want none", len(s.puts))
	}
}
