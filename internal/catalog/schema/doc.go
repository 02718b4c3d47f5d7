// Package schema defines the catalog records mirrored from an asset root.
//
// # Overview
//
// An asset root holds one folder per model. A folder named X qualifies for
// the catalog when it contains X/X.jpeg; X/X.gltf and X/X.url are optional:
//
//	root/
//	  Chair/
//	    Chair.jpeg      thumbnail (required)
//	    Chair.gltf      model (optional)
//	    Chair.url       shortcut with a URL= line (optional)
//	    textures/*.png  inspected on the detail page
//
// Each qualifying folder becomes one Entry keyed by its folder name.
//
// # Ownership
//
// Path, ThumbRef, ModelPath, LinkURL and ObtainedOn are owned by the
// reconciler in package sync. TypeID is assigned by the reconciler only
// while it is unset. CategoryID and Tags belong to the user and are never
// touched by a sync.
package schema
