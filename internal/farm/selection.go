package farm

import "github.com/hitoshi/nimbo/internal/model"

// SelectActive は保存済みの農場IDと所属農場一覧から選択中の農場を決める。
// 保存済みIDが一覧に含まれていればそれを、含まれていなければ先頭の農場を返す。
// 一覧が空の場合はnilを返す。
func SelectActive(stored string, farms []*model.Farm) *model.Farm {
	if len(farms) == 0 {
		return nil
	}
	if stored != "" {
		for _, f := range farms {
			if f.ID == stored {
				return f
			}
		}
	}
	return farms[0]
}
