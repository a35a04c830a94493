package rulesrc

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/gethead/internal/gethead"
	"github.com/keithlinneman/gethead/internal/log"
	"github.com/keithlinneman/gethead/internal/xerrors"
)

// DefaultMaxObjectBytes caps S3 documents when S3Source.MaxBytes is unset.
const DefaultMaxObjectBytes = 1 << 20

// Source yields one ignore-rule document.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]byte, error)
}

type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return "file:" + f.Path }

func (f FileSource) Fetch(context.Context) ([]byte, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", f.Path)
	}
	return b, nil
}

// SSMAPI is the part of *ssm.Client SSMSource uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads the document from a (possibly SecureString) parameter.
type SSMSource struct {
	Client SSMAPI
	Param  string
}

func (s SSMSource) Name() string { return "ssm:" + s.Param }

func (s SSMSource) Fetch(ctx context.Context) ([]byte, error) {
	out, err := s.Client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.Param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get SSM parameter %s", s.Param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, xerrors.Newf("SSM parameter %s has no value", s.Param)
	}
	return []byte(*out.Parameter.Value), nil
}

// S3API is the part of *s3.Client S3Source uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Source struct {
	Client   S3API
	Bucket   string
	Key      string
	MaxBytes int64
}

func (s S3Source) Name() string { return "s3://" + s.Bucket + "/" + s.Key }

func (s S3Source) Fetch(ctx context.Context) ([]byte, error) {
	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxObjectBytes
	}
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get S3 object %s", s.Name())
	}
	defer out.Body.Close()

	b, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, xerrors.Wrapf(err, "read S3 object %s", s.Name())
	}
	if int64(len(b)) > limit {
		return nil, xerrors.Newf("S3 object %s exceeds %d bytes", s.Name(), limit)
	}
	return b, nil
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", xerrors.Wrapf(err, "parse %q", uri)
	}
	if u.Scheme != "s3" {
		return "", "", xerrors.Newf("%q: scheme must be s3", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", xerrors.Newf("%q: want s3://bucket/key", uri)
	}
	return u.Host, key, nil
}

// Load fetches and decodes every source in order and concatenates their
// rules. Any fetch or decode failure aborts the load.
func Load(ctx context.Context, logger log.Logger, sources ...Source) (gethead.Rules, error) {
	if logger == nil {
		logger = log.Nop()
	}
	var out gethead.Rules
	for _, src := range sources {
		b, err := src.Fetch(ctx)
		if err != nil {
			return nil, xerrors.Wrapf(err, "ignore rules from %s", src.Name())
		}
		res, err := Parse(b)
		if err != nil {
			return nil, xerrors.Wrapf(err, "ignore rules from %s", src.Name())
		}
		for _, s := range res.Skipped {
			logger.Warn(ctx, "ignore rule skipped", "source", src.Name(), "rule", s)
		}
		logger.Info(ctx, "ignore rules loaded", "source", src.Name(), "count", len(res.Rules))
		out = append(out, res.Rules...)
	}
	return out, nil
}
