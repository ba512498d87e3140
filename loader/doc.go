// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loader ties the cache, the label catalog, the shard stream,
// and the record decoder into the one call sequence every consumer
// needs:
//
//	l, err := loader.New(dataset.CIFAR10(root), loader.Options{Logger: logger})
//	split, err := l.Open(ctx, dataset.Test)
//	defer split.Close()
//	for record, err := range split.Records(ctx) { ... }
//
// Open first ensures the dataset is on local disk, so the first call
// in a process may download; later calls do not touch the network.
package loader
