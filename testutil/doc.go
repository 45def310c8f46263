// Package testutil provides testing utilities for resgo.
//
// This package is intended for use in tests only. It provides a seeded
// random number generator and fake resources with failure switches.
//
// # Fake Resources
//
//	a := testutil.NewAsset(resource.KindMesh, []byte("payload"))
//	a.FailLoad = testutil.ErrInjected // next Load fails
//
// [Asset] implements resource.Cacheable and resource.Cloner; [Plain]
// implements only resource.Resource.
package testutil
