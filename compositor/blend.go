/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * PlayKit
 * Copyright (C) 2026 OpenCine
 *
 * This file is part of PlayKit.
 *
 * PlayKit is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * PlayKit is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with PlayKit.  If not, see <https://www.gnu.org/licenses/>.
 */
package compositor

import (
	"math"

	"github.com/opencine/playkit/media"
	"github.com/opencine/playkit/timeline"
)

//
// ==============================
// Per-pixel blend formulas (C12)
// ==============================
//
// Pixels are normalized to [0,1] per component for the blend and
// written back as 8-bit. srcA already includes the layer opacity.
// Overlay branches on the destination component, not the source.
//

func blendPixel(mode timeline.BlendMode,
	sR, sG, sB, sA float64,
	dR, dG, dB, dA float64) (oR, oG, oB, oA float64) {

	switch mode {
	case timeline.BlendNormal:
		// Porter-Duff over, normalized by the output alpha
		oA = sA + dA*(1-sA)
		if oA > 0 {
			oR = (sR*sA + dR*dA*(1-sA)) / oA
			oG = (sG*sA + dG*dA*(1-sA)) / oA
			oB = (sB*sA + dB*dA*(1-sA)) / oA
		}

	case timeline.BlendAdd:
		oR = math.Min(1, sR*sA+dR)
		oG = math.Min(1, sG*sA+dG)
		oB = math.Min(1, sB*sA+dB)
		oA = math.Min(1, sA+dA)

	case timeline.BlendMultiply:
		oR = sR*dR*sA + dR*(1-sA)
		oG = sG*dG*sA + dG*(1-sA)
		oB = sB*dB*sA + dB*(1-sA)
		oA = sA + dA*(1-sA)

	case timeline.BlendScreen:
		oR = (1-(1-sR)*(1-dR))*sA + dR*(1-sA)
		oG = (1-(1-sG)*(1-dG))*sA + dG*(1-sA)
		oB = (1-(1-sB)*(1-dB))*sA + dB*(1-sA)
		oA = sA + dA*(1-sA)

	case timeline.BlendOverlay:
		ov := func(d, s float64) float64 {
			if d < 0.5 {
				return 2 * d * s
			}
			return 1 - 2*(1-d)*(1-s)
		}
		oR = ov(dR, sR)*sA + dR*(1-sA)
		oG = ov(dG, sG)*sA + dG*(1-sA)
		oB = ov(dB, sB)*sA + dB*(1-sA)
		oA = sA + dA*(1-sA)

	case timeline.BlendDifference:
		oR = math.Abs(sR-dR)*sA + dR*(1-sA)
		oG = math.Abs(sG-dG)*sA + dG*(1-sA)
		oB = math.Abs(sB-dB)*sA + dB*(1-sA)
		oA = sA + dA*(1-sA)

	default:
		oR, oG, oB, oA = dR, dG, dB, dA
	}
	return
}

// blendLayer folds src onto dst in place. Both must be packed RGBA.
// opacity multiplies the source alpha channel.
func blendLayer(dst, src *media.VideoFrame, mode timeline.BlendMode, opacity float64) {
	if dst.SW == nil || src.SW == nil {
		return
	}
	if dst.Format != media.PixelFormatRGBA || src.Format != media.PixelFormatRGBA {
		return
	}

	w := dst.Width
	if src.Width < w {
		w = src.Width
	}
	h := dst.Height
	if src.Height < h {
		h = src.Height
	}

	sData, sStride := src.SW.Planes[0], src.SW.Strides[0]
	dData, dStride := dst.SW.Planes[0], dst.SW.Strides[0]

	for y := 0; y < h; y++ {
		sRow := sData[y*sStride:]
		dRow := dData[y*dStride:]
		for x := 0; x < w; x++ {
			si := x * 4
			di := x * 4

			sR := float64(sRow[si]) / 255
			sG := float64(sRow[si+1]) / 255
			sB := float64(sRow[si+2]) / 255
			sA := float64(sRow[si+3]) / 255 * opacity

			dR := float64(dRow[di]) / 255
			dG := float64(dRow[di+1]) / 255
			dB := float64(dRow[di+2]) / 255
			dA := float64(dRow[di+3]) / 255

			oR, oG, oB, oA := blendPixel(mode, sR, sG, sB, sA, dR, dG, dB, dA)

			dRow[di] = uint8(oR*255 + 0.5)
			dRow[di+1] = uint8(oG*255 + 0.5)
			dRow[di+2] = uint8(oB*255 + 0.5)
			dRow[di+3] = uint8(oA*255 + 0.5)
		}
	}
}
