package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"net"

	"GeoCheckin/pkg/errors"
)

// IsUnavailable 判断错误是否意味着数据库不可达（连接失效、网络错误、超时），
// 此类错误应中止整轮批次而不是按用户计数
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, errors.PersistenceUnavailable) ||
		stderrors.Is(err, driver.ErrBadConn) ||
		stderrors.Is(err, sql.ErrConnDone) ||
		stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}
