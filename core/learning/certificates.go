package learning

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
)

func (svc *Service) ListCertificates(ctx context.Context, studentID string) ([]Certificate, error) {
	return svc.repo.ListCertificates(ctx, studentID)
}

// VerifyCertificate is the public lookup of a certificate by its ID.
func (svc *Service) VerifyCertificate(ctx context.Context, certificateID string) (CertificateVerification, error) {
	cert, err := svc.repo.GetCertificate(ctx, core.CleanString(certificateID))
	if err != nil {
		return CertificateVerification{}, err
	}
	data, err := svc.certificateData(ctx, cert)
	if err != nil {
		return CertificateVerification{}, err
	}
	return CertificateVerification{
		CertificateID: cert.CertificateID,
		StudentName:   data.StudentName,
		CourseTitle:   data.CourseTitle,
		IssuedAt:      cert.IssuedAt,
	}, nil
}

// CertificateDocument returns the certificate PDF of its owner.
// The document is rendered on first download and its stored ref reused afterwards.
func (svc *Service) CertificateDocument(ctx context.Context, studentID, certificateID string) (Certificate, io.ReadCloser, error) {
	cert, err := svc.repo.GetCertificate(ctx, core.CleanString(certificateID))
	if err != nil {
		return Certificate{}, nil, err
	}
	if cert.StudentID != studentID {
		return Certificate{}, nil, ErrNotOwner
	}

	if cert.DocumentRef.Valid {
		rc, err := svc.deps.Store.Open(ctx, cert.DocumentRef.String)
		if err == nil {
			return cert, rc, nil
		}
		if !os.IsNotExist(errors.Cause(err)) {
			return Certificate{}, nil, errors.Wrap(err, "opening certificate document")
		}
		svc.deps.Logger.Warn("certificate document missing, rendering again", map[string]interface{}{
			"certificate_id": cert.CertificateID,
			"ref":            cert.DocumentRef.String,
		})
	}

	data, err := svc.certificateData(ctx, cert)
	if err != nil {
		return Certificate{}, nil, err
	}
	content, err := svc.deps.Renderer.RenderCertificate(data)
	if err != nil {
		return Certificate{}, nil, errors.Wrap(err, "rendering certificate")
	}
	ref, err := svc.deps.Store.Save(ctx, "certificate_"+cert.CertificateID+".pdf", content)
	if err != nil {
		return Certificate{}, nil, errors.Wrap(err, "saving certificate document")
	}
	if err = svc.repo.SetCertificateDocument(ctx, cert.ID, ref); err != nil {
		return Certificate{}, nil, errors.Wrap(err, "saving certificate document ref")
	}
	cert.DocumentRef.SetValid(ref)
	return cert, ioutil.NopCloser(bytes.NewReader(content)), nil
}

func (svc *Service) certificateData(ctx context.Context, cert Certificate) (CertificateData, error) {
	student, err := svc.deps.Students.GetByID(ctx, cert.StudentID)
	if err != nil {
		return CertificateData{}, errors.Wrap(err, "getting student")
	}
	course, err := svc.deps.Catalog.GetCourseByID(ctx, cert.CourseID)
	if err != nil {
		return CertificateData{}, errors.Wrap(err, "getting course")
	}

	data := CertificateData{
		CertificateID:  cert.CertificateID,
		StudentName:    student.DisplayName(),
		CourseTitle:    course.Title,
		InstructorName: course.InstructorName,
		IssuedAt:       cert.IssuedAt,
		SiteURL:        svc.deps.SiteURL,
	}
	if data.InstructorName == "" {
		if inst, err := svc.deps.Catalog.GetInstructor(ctx, course.InstructorID); err == nil {
			data.InstructorName = inst.FullName
		}
	}
	return data, nil
}
