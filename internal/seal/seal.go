// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package seal restricts which types may implement the engine contract.
//
// Token lives in an internal package, so code outside this module cannot name
// it and therefore cannot satisfy an interface method that takes it.
package seal

// Token is passed to AbstractEngine.Sealed.
type Token struct{}
