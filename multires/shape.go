// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package multires

import "github.com/OpenPSG/eegprep"

// DecimatedLength halves n, rounding up, levels times.
func DecimatedLength(n, levels int) int {
	for i := 0; i < levels; i++ {
		n = (n + 1) / 2
	}
	return n
}

// ValidateLevel rejects decomposition depths below one, and depths that leave
// fewer than two coefficients per channel.
func ValidateLevel(samples, levels int) error {
	if levels < 1 {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "level", "%d, must be at least 1", levels)
	}
	if samples < 1 {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "samples", "%d, must be at least 1", samples)
	}
	if n := DecimatedLength(samples, levels); n < 2 {
		return eegprep.Errorf(eegprep.ErrInvalidParameter, "level",
			"%d levels reduce %d samples to %d, need at least 2", levels, samples, n)
	}
	return nil
}
