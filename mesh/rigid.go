package mesh

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RotationMatrix is a 3x3 rotation matrix in row-major order.
type RotationMatrix [3][3]float64

// Apply rotates v.
func (r RotationMatrix) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}

// IdentityRotation returns the identity rotation.
func IdentityRotation() RotationMatrix {
	return RotationMatrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// RigidTransform is a similarity transform x -> s*R*x + t. Scale is 1 unless
// scaling was requested.
type RigidTransform struct {
	Rotation    RotationMatrix
	Scale       float64
	Translation r3.Vector
}

// IdentityTransform returns the identity similarity transform.
func IdentityTransform() RigidTransform {
	return RigidTransform{Rotation: IdentityRotation(), Scale: 1}
}

// ApplyPosition transforms a position.
func (t RigidTransform) ApplyPosition(v r3.Vector) r3.Vector {
	return t.Rotation.Apply(v).Mul(t.Scale).Add(t.Translation)
}

// Mul returns the rotation r followed by o, as a single matrix o*r.
func (r RotationMatrix) Mul(o RotationMatrix) RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += o[i][k] * r[k][j]
			}
		}
	}
	return out
}

// Compose returns the transform equivalent to applying t first and then o.
func (t RigidTransform) Compose(o RigidTransform) RigidTransform {
	return RigidTransform{
		Rotation:    t.Rotation.Mul(o.Rotation),
		Scale:       o.Scale * t.Scale,
		Translation: o.ApplyPosition(t.Translation),
	}
}

// ComputeRigidTransformation computes the weighted closed-form rigid (or,
// with allowScaling, similarity) alignment of the floating positions onto
// the corresponding positions via Horn's quaternion method, and applies it
// to the floating mesh in place. Positions get the full transform; normals
// are rotated only and renormalized.
//
// Flagged-out floating vertices contribute nothing to the weighted sums.
// A zero total weight makes the call a no-op returning the identity, so a
// fully flagged-out correspondence set flows through the drivers without
// moving the mesh.
func ComputeRigidTransformation(floating *Mesh, corresponding []Feature, weights []float64, allowScaling bool) (RigidTransform, error) {
	identity := IdentityTransform()
	n := floating.NumVertices()
	if len(corresponding) != n || len(weights) != n {
		return identity, wrapInvalidInput("correspondence arrays (%d, %d) do not match vertex count %d",
			len(corresponding), len(weights), n)
	}
	for i, w := range weights {
		if w < 0 {
			return identity, wrapInvalidInput("negative weight at vertex %d", i)
		}
	}
	eff := make([]float64, n)
	for i := range eff {
		eff[i] = weights[i] * floating.Flags[i]
	}

	var totalWeight float64
	var sumP, sumQ r3.Vector
	for i := 0; i < n; i++ {
		w := eff[i]
		totalWeight += w
		sumP = sumP.Add(floating.Features[i].Position.Mul(w))
		sumQ = sumQ.Add(corresponding[i].Position.Mul(w))
	}
	if totalWeight <= 0 {
		return identity, nil
	}
	centroidP := sumP.Mul(1 / totalWeight)
	centroidQ := sumQ.Mul(1 / totalWeight)

	// Weighted cross-covariance C = E[p q^T] - E[p] E[q]^T.
	var c [3][3]float64
	for i := 0; i < n; i++ {
		w := eff[i]
		if w == 0 {
			continue
		}
		p := floating.Features[i].Position
		q := corresponding[i].Position
		pv := [3]float64{p.X, p.Y, p.Z}
		qv := [3]float64{q.X, q.Y, q.Z}
		for r := 0; r < 3; r++ {
			for s := 0; s < 3; s++ {
				c[r][s] += w * pv[r] * qv[s]
			}
		}
	}
	mp := [3]float64{centroidP.X, centroidP.Y, centroidP.Z}
	mq := [3]float64{centroidQ.X, centroidQ.Y, centroidQ.Z}
	var frobenius float64
	for r := 0; r < 3; r++ {
		for s := 0; s < 3; s++ {
			c[r][s] = c[r][s]/totalWeight - mp[r]*mq[s]
			if math.IsNaN(c[r][s]) || math.IsInf(c[r][s], 0) {
				return identity, wrapOverflow("non-finite cross-covariance")
			}
			frobenius += c[r][s] * c[r][s]
		}
	}

	rotation := IdentityRotation()
	if frobenius > 1e-30 {
		var err error
		rotation, err = rotationFromCovariance(c)
		if err != nil {
			return identity, err
		}
	}

	scale := 1.0
	if allowScaling {
		var num, den float64
		for i := 0; i < n; i++ {
			w := eff[i]
			if w == 0 {
				continue
			}
			rp := rotation.Apply(floating.Features[i].Position.Sub(centroidP))
			dq := corresponding[i].Position.Sub(centroidQ)
			num += w * rp.Dot(dq)
			den += w * rp.Dot(rp)
		}
		if den > 1e-30 {
			scale = num / den
		}
		if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
			return identity, wrapDegenerate("non-positive similarity scale %g", scale)
		}
	}

	transform := RigidTransform{
		Rotation:    rotation,
		Scale:       scale,
		Translation: centroidQ.Sub(rotation.Apply(centroidP).Mul(scale)),
	}

	for i := range floating.Features {
		floating.Features[i].Position = transform.ApplyPosition(floating.Features[i].Position)
		floating.Features[i].Normal = rotation.Apply(floating.Features[i].Normal)
	}
	floating.NormalizeNormals()
	if err := checkFiniteFeatures(floating.Features); err != nil {
		return identity, err
	}
	return transform, nil
}

// rotationFromCovariance recovers the optimal rotation from the 3x3
// cross-covariance via the eigendecomposition of Horn's symmetric 4x4
// matrix. The rotation quaternion is the eigenvector of the largest
// eigenvalue; EigenSym orders eigenvalues ascending, so the last column is
// taken, which also resolves ties deterministically in favor of the
// largest-index eigenvector.
func rotationFromCovariance(c [3][3]float64) (RotationMatrix, error) {
	trace := c[0][0] + c[1][1] + c[2][2]
	dx := c[1][2] - c[2][1]
	dy := c[2][0] - c[0][2]
	dz := c[0][1] - c[1][0]

	q := mat.NewSymDense(4, []float64{
		trace, dx, dy, dz,
		dx, c[0][0] + c[0][0] - trace, c[0][1] + c[1][0], c[0][2] + c[2][0],
		dy, c[1][0] + c[0][1], c[1][1] + c[1][1] - trace, c[1][2] + c[2][1],
		dz, c[2][0] + c[0][2], c[2][1] + c[1][2], c[2][2] + c[2][2] - trace,
	})

	var eigen mat.EigenSym
	if !eigen.Factorize(q, true) {
		return IdentityRotation(), wrapDegenerate("eigendecomposition of quaternion matrix failed")
	}
	var vectors mat.Dense
	eigen.VectorsTo(&vectors)

	q0 := vectors.At(0, 3)
	qx := vectors.At(1, 3)
	qy := vectors.At(2, 3)
	qz := vectors.At(3, 3)
	norm := math.Sqrt(q0*q0 + qx*qx + qy*qy + qz*qz)
	if norm < 1e-12 || math.IsNaN(norm) {
		return IdentityRotation(), wrapDegenerate("degenerate rotation quaternion")
	}
	q0, qx, qy, qz = q0/norm, qx/norm, qy/norm, qz/norm

	return RotationMatrix{
		{q0*q0 + qx*qx - qy*qy - qz*qz, 2 * (qx*qy - q0*qz), 2 * (qx*qz + q0*qy)},
		{2 * (qy*qx + q0*qz), q0*q0 - qx*qx + qy*qy - qz*qz, 2 * (qy*qz - q0*qx)},
		{2 * (qz*qx - q0*qy), 2 * (qz*qy + q0*qx), q0*q0 - qx*qx - qy*qy + qz*qz},
	}, nil
}
